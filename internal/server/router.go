// Package server assembles the kiosk HTTP surface: API routes, Prometheus
// metrics, static files and the middleware around them.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/Sternrassler/kiosk-proxy/internal/proxy"
	"github.com/Sternrassler/kiosk-proxy/pkg/logging"
	"github.com/Sternrassler/kiosk-proxy/pkg/metrics"
	"github.com/Sternrassler/kiosk-proxy/pkg/ratelimit"
)

// Options configures NewRouter.
type Options struct {
	// DocRoot is served for every path no API route claims.
	DocRoot string
	// Limiter gates /api/pc and /api/stocks/*; nil disables limiting.
	Limiter *ratelimit.Limiter
	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string
}

// NewRouter returns the complete handler for the kiosk server.
func NewRouter(svc *proxy.Service, opts Options) http.Handler {
	logger := logging.NewLogger("server")
	rec := svc.Metrics()
	if opts.DocRoot == "" {
		opts.DocRoot = "."
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", svc.HandleHealth).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/api/pc",
		withRateLimit(opts.Limiter, pcBucket, rec)(http.HandlerFunc(svc.HandlePC)),
	).Methods(http.MethodGet)
	r.PathPrefix(proxy.StocksPrefix + "/").Handler(
		withRateLimit(opts.Limiter, stocksBucket, rec)(http.HandlerFunc(svc.HandleStocks)),
	).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.DocRoot))).Methods(http.MethodGet, http.MethodHead)

	h := http.Handler(r)
	if len(opts.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(h)
	}
	h = withRecovery(logger)(h)
	h = withLogging(logger)(h)
	h = withRequestCount(rec)(h)
	return h
}
