// Package ratelimit gates inbound requests per client and bucket with a
// fixed-window counter. Counters live in Redis when it is reachable so that
// every process shares one view, and in memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces limiter counters in Redis.
const KeyPrefix = "kiosk:rate_limit"

// Store increments a window counter. The first increment of a key starts its
// expiry; later increments leave it alone.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore keeps counters in Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

// Incr runs INCR and EXPIRE in one round trip. Keys are per-window, so
// refreshing the expiry on every increment never extends a window.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment %s in redis: %w", key, err)
	}
	return incr.Val(), nil
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore keeps counters in process memory. Expired counters are swept
// on write once the map passes sweepThreshold entries.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

const sweepThreshold = 4096

// NewMemoryStore creates an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		now:      now,
	}
}

// Incr increments key, restarting it when its previous window expired.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		if len(s.counters) >= sweepThreshold {
			s.sweep(now)
		}
		c = &memoryCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

// Len reports the number of live and expired counters held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}
