package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"debiasapi/internal/model"
	"debiasapi/internal/repository"
)

// SessionPostgres is a PostgreSQL implementation of repository.SessionRepository.
// The session aggregate is stored as a JSONB payload next to the columns the
// sweep and diagnostics query on.
type SessionPostgres struct {
	db *sql.DB
}

// NewSessionPostgres creates a new SessionPostgres repository.
func NewSessionPostgres(db *sql.DB) *SessionPostgres {
	return &SessionPostgres{db: db}
}

var _ repository.SessionRepository = (*SessionPostgres)(nil)

// Get fetches a single session by its ID.
func (r *SessionPostgres) Get(ctx context.Context, id string) (*model.Session, error) {
	const q = `
		SELECT payload
		FROM review_sessions
		WHERE id = $1
	`
	var payload []byte
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// Put upserts the session row.
func (r *SessionPostgres) Put(ctx context.Context, s *model.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	const q = `
		INSERT INTO review_sessions (id, owner, payload, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()
	`
	_, err = r.db.ExecContext(ctx, q, s.ID, s.Owner, payload, s.CreatedAt, s.ExpiresAt)
	return err
}

// Delete removes a session by ID. It does not return an error if the row does not exist.
func (r *SessionPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM review_sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// DeleteExpired removes rows whose expiry precedes cutoff.
func (r *SessionPostgres) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `DELETE FROM review_sessions WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Count returns the number of stored sessions.
func (r *SessionPostgres) Count(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM review_sessions`
	var total int
	if err := r.db.QueryRowContext(ctx, q).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *SessionPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
