// Package redis stores review sessions as JSON strings in Redis. Expiry is
// delegated to key TTLs so the periodic sweep has nothing to do here.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"debiasapi/internal/model"
	"debiasapi/internal/repository"
)

// redisAPI is the subset of *goredis.Client used by SessionRedis.
type redisAPI interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

type SessionRedis struct {
	rdb    redisAPI
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// NewSessionRedis wraps a connected client. Keys live for ExpiresAt+grace so
// reads inside the grace window still succeed.
func NewSessionRedis(rdb redisAPI, prefix string, grace time.Duration) *SessionRedis {
	if prefix == "" {
		prefix = "debias:session:"
	}
	return &SessionRedis{rdb: rdb, prefix: prefix, grace: grace, now: time.Now}
}

// Dial connects and pings the server before handing the client out.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

var _ repository.SessionRepository = (*SessionRedis)(nil)

func (r *SessionRedis) key(id string) string { return r.prefix + id }

func (r *SessionRedis) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *SessionRedis) Put(ctx context.Context, s *model.Session) error {
	ttl := s.ExpiresAt.Add(r.grace).Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, s.ID)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return r.rdb.Set(ctx, r.key(s.ID), raw, ttl).Err()
}

func (r *SessionRedis) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.key(id)).Err()
}

// DeleteExpired is a no-op: Redis evicts keys once their TTL elapses.
func (r *SessionRedis) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Count scans the key prefix. It is O(keyspace) and only used for health output.
func (r *SessionRedis) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (r *SessionRedis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
