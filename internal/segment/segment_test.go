package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debiasapi/internal/model"
)

func texts(units []model.SentenceUnit) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.Text)
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      []string
		ambiguous []bool
	}{
		{
			name:      "basic terminators",
			input:     "Women are bad drivers. The sky is blue! Is it?",
			want:      []string{"Women are bad drivers.", "The sky is blue!", "Is it?"},
			ambiguous: []bool{false, false, false},
		},
		{
			name:      "abbreviation does not split",
			input:     "Dr. Smith arrived. He left.",
			want:      []string{"Dr. Smith arrived.", "He left."},
			ambiguous: []bool{true, false},
		},
		{
			name:      "decimal and lowercase continuation",
			input:     "The value is 3.14 today. ok",
			want:      []string{"The value is 3.14 today. ok"},
			ambiguous: []bool{true},
		},
		{
			name:      "devanagari danda",
			input:     "महिलाहरू कमजोर छन्। पुरुषहरू बलियो छन्।",
			want:      []string{"महिलाहरू कमजोर छन्।", "पुरुषहरू बलियो छन्।"},
			ambiguous: []bool{false, false},
		},
		{
			name:      "paragraph break ends heading",
			input:     "Title\n\nBody sentence.",
			want:      []string{"Title", "Body sentence."},
			ambiguous: []bool{true, false},
		},
		{
			name:      "closing quote stays with sentence",
			input:     `He said "stop." Then he left.`,
			want:      []string{`He said "stop."`, "Then he left."},
			ambiguous: []bool{false, false},
		},
		{
			name:      "list enumerator",
			input:     "1. Introduction to the topic.",
			want:      []string{"1. Introduction to the topic."},
			ambiguous: []bool{true},
		},
		{
			name:      "single line break keeps sentence",
			input:     "A long sentence\nwrapped over lines. Next one.",
			want:      []string{"A long sentence\nwrapped over lines.", "Next one."},
			ambiguous: []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units := Split(tt.input)
			require.Equal(t, tt.want, texts(units))
			for i, u := range units {
				assert.Equal(t, i, u.Index)
				assert.Equal(t, tt.ambiguous[i], u.SegmentedAmbiguously, u.Text)
			}
		})
	}
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split(""))
	assert.Empty(t, Split("  \n\t \n"))
}

func TestSplitSpansCoverSource(t *testing.T) {
	input := "  Intro line.\n\n  Men are leaders;  women follow.   Really?\r\n\r\nEnd without stop  \n"
	units := Split(input)
	require.NotEmpty(t, units)

	var b strings.Builder
	cursor := 0
	for _, u := range units {
		require.GreaterOrEqual(t, u.Start, cursor)
		gap := input[cursor:u.Start]
		assert.Empty(t, strings.TrimSpace(gap))
		assert.Equal(t, u.Text, input[u.Start:u.End])
		b.WriteString(gap)
		b.WriteString(input[u.Start:u.End])
		cursor = u.End
	}
	b.WriteString(input[cursor:])
	assert.Equal(t, input, b.String())
}

func TestAmbiguousCount(t *testing.T) {
	units := Split("Mr. Brown is here. Heading\n\nDone.")
	assert.Equal(t, 2, AmbiguousCount(units))
}
