// Package cache provides the in-memory TTL cache used for upstream market data.
//
// A Store holds one Entry per key. The TTL is a parameter of the read, not of
// the write: a value is served while now - CapturedAt <= ttl and is treated as
// absent afterwards. Nothing is evicted; the next Set simply replaces the slot.
//
// # Basic Usage
//
//	bars := cache.NewStore[[]json.RawMessage](cache.StoreDaily, nil)
//
//	if cached, ok := bars.Get(cache.DailyKey("AAPL"), 90*time.Second); ok {
//		return cached
//	}
//	// miss - fetch from upstream, then
//	bars.Set(cache.DailyKey("AAPL"), fetched)
//
// # Time
//
// NewStore accepts a Clock so tests can advance time without sleeping.
//
// # Metrics
//
//   - kiosk_cache_hits_total{store} - Fresh reads
//   - kiosk_cache_misses_total{store} - Absent or stale reads
//   - kiosk_cache_entries{store} - Slots held by a store
package cache
