package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh reads by store
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"store"}, // "marketstatus", "daily"
	)

	// CacheMisses tracks absent or stale reads by store
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_cache_misses_total",
			Help: "Total number of cache misses, stale entries included",
		},
		[]string{"store"},
	)

	// CacheEntries tracks the number of slots held by each store
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiosk_cache_entries",
			Help: "Number of entries held by a cache store",
		},
		[]string{"store"},
	)
)
