package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debiasapi/internal/model"
	"debiasapi/internal/repository/memory"
	"debiasapi/internal/review"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newSession(id string, now time.Time) *model.Session {
	sugg := "Anyone can be a nurse."
	return &model.Session{
		ID:        id,
		Sentences: []model.SentenceUnit{{Index: 0, Text: "Nurses are women.", End: 17}},
		Items: []model.ReviewItem{{
			ID: "item-1", SentenceIndex: 0, Category: model.CategoryGender,
			Confidence: 0.9, Suggestion: &sugg, Status: model.StatusPending,
		}},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func setup(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	st := New(memory.NewSessionMemory(), WithClock(clock.Now), WithGrace(10*time.Minute))
	require.NoError(t, st.Create(context.Background(), newSession("s1", clock.Now())))
	return st, clock
}

func TestStore_GetReturnsCopy(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()

	a, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	a.Items[0].Status = model.StatusApproved

	b, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Items[0].Status)

	_, err = st.Get(ctx, "missing")
	assert.ErrorIs(t, err, review.ErrNotFound)
}

func TestStore_UpdateFailureDoesNotPersist(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := st.Update(ctx, "s1", func(s *model.Session) error {
		s.Items[0].Status = model.StatusApproved
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := st.Get(ctx, "s1")
	assert.Equal(t, model.StatusPending, got.Items[0].Status)
}

func TestStore_ExpiryAndGrace(t *testing.T) {
	st, clock := setup(t)
	ctx := context.Background()
	noop := func(*model.Session) error { return nil }

	clock.Advance(time.Hour)
	_, err := st.Update(ctx, "s1", noop)
	assert.ErrorIs(t, err, review.ErrSessionExpired)
	_, err = st.Get(ctx, "s1")
	assert.NoError(t, err, "readable during grace")

	clock.Advance(10 * time.Minute)
	_, err = st.Get(ctx, "s1")
	assert.ErrorIs(t, err, review.ErrNotFound)
	_, err = st.Update(ctx, "s1", noop)
	assert.ErrorIs(t, err, review.ErrNotFound)
}

func TestStore_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	var observed int
	st := New(memory.NewSessionMemory(),
		WithClock(clock.Now),
		WithGrace(time.Minute),
		WithSweepObserver(func(n int) { observed += n }),
	)
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, newSession("a", clock.Now())))
	clock.Advance(30 * time.Minute)
	require.NoError(t, st.Create(ctx, newSession("b", clock.Now())))

	clock.Advance(31*time.Minute + time.Second)
	n, err := st.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, observed)

	count, _ := st.Count(ctx)
	assert.Equal(t, 1, count)
}

func TestStore_Delete(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, st.Delete(ctx, "s1"))
	assert.ErrorIs(t, st.Delete(ctx, "s1"), review.ErrNotFound)
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Update(ctx, "s1", func(s *model.Session) error {
				s.Items[0].Revision++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _ := st.Get(ctx, "s1")
	assert.Equal(t, 64, got.Items[0].Revision)
	assert.Zero(t, st.locks.size())
}

func TestStore_DoubleApproveExactlyOneWins(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()
	engine := review.NewEngine(nil, nil, review.Policy{MaxRegenerations: 5})

	var ok, conflict int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Update(ctx, "s1", func(s *model.Session) error {
				_, err := engine.Decide(s, "item-1", review.EventApprove, nil)
				return err
			})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, review.ErrInvalidTransition):
				atomic.AddInt32(&conflict, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok)
	assert.EqualValues(t, 7, conflict)
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	km := newKeyedMutex()
	release, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Zero(t, km.size())
}

func TestStore_RunStopsOnCancel(t *testing.T) {
	st, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStore_InspectDoesNotPersist(t *testing.T) {
	st, clock := setup(t)
	ctx := context.Background()

	err := st.Inspect(ctx, "s1", func(s *model.Session) error {
		s.Items[0].Status = model.StatusApproved
		return nil
	})
	require.NoError(t, err)
	got, _ := st.Get(ctx, "s1")
	assert.Equal(t, model.StatusPending, got.Items[0].Status)

	clock.Advance(2 * time.Hour)
	err = st.Inspect(ctx, "s1", func(*model.Session) error { return nil })
	assert.ErrorIs(t, err, review.ErrNotFound)
}
