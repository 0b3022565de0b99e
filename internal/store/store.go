// Package store serializes access to review sessions. Every mutation of a
// session runs under that session's lock, reads return private copies, and
// lifetime rules (expiry, grace window, sweep) are enforced here so the
// repository backends stay dumb.
package store

import (
	"context"
	"errors"
	"time"

	"debiasapi/internal/logger"
	"debiasapi/internal/model"
	"debiasapi/internal/repository"
	"debiasapi/internal/review"
)

type Store struct {
	repo    repository.SessionRepository
	locks   *keyedMutex
	grace   time.Duration
	now     func() time.Time
	log     *logger.Logger
	onSweep func(int)
}

type Option func(*Store)

// WithGrace sets how long an expired session stays readable.
func WithGrace(d time.Duration) Option {
	return func(s *Store) { s.grace = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithSweepObserver is called with the number of sessions removed by each sweep.
func WithSweepObserver(fn func(int)) Option {
	return func(s *Store) { s.onSweep = fn }
}

func New(repo repository.SessionRepository, opts ...Option) *Store {
	s := &Store{
		repo:  repo,
		locks: newKeyedMutex(),
		now:   time.Now,
		log:   logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func notFound(id string) error {
	return &review.Error{Code: review.CodeNotFound, SessionID: id, Reason: "session not found"}
}

// load fetches a session and hides it once the grace window has passed.
func (s *Store) load(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, err
	}
	if !s.now().Before(sess.ExpiresAt.Add(s.grace)) {
		return nil, notFound(id)
	}
	return sess, nil
}

// Get returns a snapshot of the session. Expired sessions remain readable
// until the grace window ends.
func (s *Store) Get(ctx context.Context, id string) (*model.Session, error) {
	return s.load(ctx, id)
}

// Create persists a freshly built session.
func (s *Store) Create(ctx context.Context, sess *model.Session) error {
	release, err := s.locks.Lock(ctx, sess.ID)
	if err != nil {
		return err
	}
	defer release()
	return s.repo.Put(ctx, sess)
}

// Update runs fn against the current session under its lock and persists the
// result. When fn fails nothing is written. Expired sessions reject updates
// with SESSION_EXPIRED.
func (s *Store) Update(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	release, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, &review.Error{Code: review.CodeSessionExpired, SessionID: id, Reason: "session expired"}
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.repo.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Inspect runs fn under the session lock with the same expiry rules as Update
// but never writes. It is used to validate a transition before slow work.
func (s *Store) Inspect(ctx context.Context, id string, fn func(*model.Session) error) error {
	release, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !s.now().Before(sess.ExpiresAt) {
		return &review.Error{Code: review.CodeSessionExpired, SessionID: id, Reason: "session expired"}
	}
	return fn(sess)
}

// Delete removes the session. Unknown ids yield NOT_FOUND.
func (s *Store) Delete(ctx context.Context, id string) error {
	release, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Sweep removes sessions whose grace window has ended.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().Add(-s.grace))
	if err != nil {
		return 0, err
	}
	if s.onSweep != nil {
		s.onSweep(n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("session sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				s.log.Info("expired sessions removed", "count", n)
			}
		}
	}
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
