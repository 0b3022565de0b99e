package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debiasapi/internal/model"
	"debiasapi/internal/repository"
)

func sampleSession() *model.Session {
	sugg := "Everyone can cook."
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.Session{
		ID:        "6f1c2f0e-8f7a-4b38-9a36-0c1d2e3f4a5b",
		Owner:     "user-1",
		Filename:  "a.txt",
		Source:    "Women belong in the kitchen.",
		Sentences: []model.SentenceUnit{{Index: 0, Text: "Women belong in the kitchen.", Start: 0, End: 28}},
		Items: []model.ReviewItem{{
			ID: "item-1", SentenceIndex: 0, Category: model.CategoryGender, Confidence: 0.82,
			Suggestion: &sugg, Status: model.StatusPending,
		}},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestSessionPostgres_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSessionPostgres(db)
	s := sampleSession()
	payload, _ := json.Marshal(s)

	mock.ExpectExec("INSERT INTO review_sessions").
		WithArgs(s.ID, s.Owner, payload, s.CreatedAt, s.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Put(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionPostgres_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSessionPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		s := sampleSession()
		payload, _ := json.Marshal(s)
		mock.ExpectQuery("SELECT payload FROM review_sessions WHERE id = ?").
			WithArgs(s.ID).
			WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

		got, err := repo.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "Everyone can cook.", *got.Items[0].Suggestion)
		assert.Equal(t, model.StatusPending, got.Items[0].Status)
		assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT payload FROM review_sessions WHERE id = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		got, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, got)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		mock.ExpectQuery("SELECT payload FROM review_sessions WHERE id = ?").
			WithArgs("bad").
			WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte("{not json")))

		_, err := repo.Get(ctx, "bad")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionPostgres_DeleteAndSweep(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSessionPostgres(db)
	ctx := context.Background()
	cutoff := time.Now().UTC()

	mock.ExpectExec("DELETE FROM review_sessions WHERE id = ?").
		WithArgs("test-id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM review_sessions WHERE expires_at < ?").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.Delete(ctx, "test-id"))
	n, err := repo.DeleteExpired(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionPostgres_CountAndPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	repo := NewSessionPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM review_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectPing()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
