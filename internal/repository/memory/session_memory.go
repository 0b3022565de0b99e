// Package memory is a process-local SessionRepository.
package memory

import (
	"context"
	"sync"
	"time"

	"debiasapi/internal/model"
	"debiasapi/internal/repository"
)

// SessionMemory keeps deep copies of sessions in a map.
// It is safe for concurrent use by multiple goroutines.
type SessionMemory struct {
	mu   sync.RWMutex
	data map[string]*model.Session
}

// NewSessionMemory creates an empty repository.
func NewSessionMemory() *SessionMemory {
	return &SessionMemory{data: make(map[string]*model.Session)}
}

var _ repository.SessionRepository = (*SessionMemory)(nil)

func (m *SessionMemory) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *SessionMemory) Put(_ context.Context, s *model.Session) error {
	c := s.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[c.ID] = c
	return nil
}

func (m *SessionMemory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

// DeleteExpired collects candidates under the read lock, then removes them
// one at a time so a long sweep never holds the write lock for long.
func (m *SessionMemory) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.RLock()
	var ids []string
	for id, s := range m.data {
		if s.ExpiresAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range ids {
		m.mu.Lock()
		if s, ok := m.data[id]; ok && s.ExpiresAt.Before(cutoff) {
			delete(m.data, id)
			removed++
		}
		m.mu.Unlock()
	}
	return removed, nil
}

func (m *SessionMemory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data), nil
}

func (m *SessionMemory) Ping(context.Context) error { return nil }
