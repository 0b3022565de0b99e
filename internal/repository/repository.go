// Package repository contains the session persistence abstraction.
// Implementations live in subpackages (memory, postgres, redis) and hold no
// business logic: locking and expiry semantics belong to internal/store.
package repository

import (
	"context"
	"errors"
	"time"

	"debiasapi/internal/model"
)

// ErrNotFound is returned by Get when no record exists for the id.
var ErrNotFound = errors.New("session not found")

// SessionRepository is a key-value store of review sessions keyed by id.
type SessionRepository interface {
	// Get returns the stored session or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Session, error)

	// Put inserts or replaces the session record.
	Put(ctx context.Context, s *model.Session) error

	// Delete removes a session. Missing ids are not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes sessions whose ExpiresAt is before cutoff and
	// reports how many were removed. Backends with native TTL may return 0.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)

	// Count reports the number of stored sessions.
	Count(ctx context.Context) (int, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}
