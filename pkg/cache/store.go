package cache

import (
	"sync"
	"time"
)

// Store is a keyed cache where freshness is decided by the reader.
//
// Stale entries are never purged; a read past its TTL is reported as a miss
// and the next Set overwrites the slot.
type Store[V any] struct {
	name    string
	now     Clock
	mu      sync.RWMutex
	entries map[string]Entry[V]
}

// NewStore creates an empty store. The name labels the store's metrics.
// A nil clock falls back to time.Now.
func NewStore[V any](name string, clock Clock) *Store[V] {
	if clock == nil {
		clock = time.Now
	}
	return &Store[V]{
		name:    name,
		now:     clock,
		entries: make(map[string]Entry[V]),
	}
}

// Name returns the store name.
func (s *Store[V]) Name() string {
	return s.name
}

// Get returns the value stored under key if it is at most ttl old.
func (s *Store[V]) Get(key string, ttl time.Duration) (V, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || !entry.Fresh(s.now(), ttl) {
		CacheMisses.WithLabelValues(s.name).Inc()
		var zero V
		return zero, false
	}

	CacheHits.WithLabelValues(s.name).Inc()
	return entry.Value, true
}

// Set stores value under key, stamped with the current time.
// Concurrent writers to the same key are last-write-wins.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	s.entries[key] = Entry[V]{CapturedAt: s.now(), Value: value}
	size := len(s.entries)
	s.mu.Unlock()

	CacheEntries.WithLabelValues(s.name).Set(float64(size))
}

// Peek returns the raw entry for key regardless of age.
func (s *Store[V]) Peek(key string) (Entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// Len returns the number of stored entries, stale ones included.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
