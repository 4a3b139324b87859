// Package metrics records request totals and per-upstream health for the
// /health endpoint, and mirrors them to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_requests_total",
		Help: "Total inbound HTTP requests",
	})

	apiResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_api_results_total",
		Help: "Upstream call outcomes recorded by proxy handlers",
	}, []string{"api", "result"})
)

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/metrics):
//   - kiosk_requests_total (Counter): Inbound requests, every path
//   - kiosk_api_results_total{api, result} (Counter): ok/error per upstream ("pc", "stocks")
//
// Cache Metrics (pkg/cache):
//   - kiosk_cache_hits_total{store} (Counter)
//   - kiosk_cache_misses_total{store} (Counter)
//   - kiosk_cache_entries{store} (Gauge)
//
// Upstream Metrics (pkg/upstream):
//   - kiosk_upstream_requests_total{upstream, outcome} (Counter)
//   - kiosk_upstream_request_duration_seconds{upstream} (Histogram)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - kiosk_rate_limit_blocks_total{bucket} (Counter)
//
// Example Prometheus Queries:
//
//   # Daily-bars cache hit rate
//   rate(kiosk_cache_hits_total{store="daily"}[5m]) /
//   (rate(kiosk_cache_hits_total{store="daily"}[5m]) + rate(kiosk_cache_misses_total{store="daily"}[5m]))
//
//   # Market-data error ratio
//   rate(kiosk_api_results_total{api="stocks",result="error"}[5m]) /
//   rate(kiosk_api_results_total{api="stocks"}[5m])
