package cache

import "time"

// Clock returns the current time. Stores take one so tests can move time.
type Clock func() time.Time

// Entry is a cached value together with the moment it was captured.
type Entry[V any] struct {
	// CapturedAt is when the value was stored
	CapturedAt time.Time

	// Value is the cached payload
	Value V
}

// Age returns how old the entry is at now.
func (e Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.CapturedAt)
}

// Fresh reports whether the entry may still be served for the given TTL.
// An entry exactly ttl old is still fresh.
func (e Entry[V]) Fresh(now time.Time, ttl time.Duration) bool {
	return e.Age(now) <= ttl
}
