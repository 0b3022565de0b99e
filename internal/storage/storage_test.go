package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"debiasapi/internal/config"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "sessions/s1/source/report.txt", SourceKey("s1", "report.txt"))
	assert.Equal(t, "sessions/s1/final/debiased_report.txt", DocumentKey("s1", "debiased_report.txt"))
	assert.Equal(t, "sessions/s1/source/passwd", SourceKey("s1", "../../etc/passwd"))
	assert.Equal(t, "sessions/s1/source/evil.txt", SourceKey("s1", `C:\tmp\evil.txt`))
	assert.Equal(t, "sessions/s1/final/document.txt", DocumentKey("s1", ""))
	assert.Equal(t, "sessions/s1/final/document.txt", DocumentKey("s1", ".."))
}

func TestNewMinIO_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := NewMinIO(ctx, config.MinIOConfig{})
	assert.Error(t, err)
	_, err = NewMinIO(ctx, config.MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
	_, err = NewMinIO(ctx, config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)
}
