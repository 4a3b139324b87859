package server

import (
	"errors"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/kiosk-proxy/internal/proxy"
	"github.com/Sternrassler/kiosk-proxy/pkg/metrics"
	"github.com/Sternrassler/kiosk-proxy/pkg/ratelimit"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withRequestCount(rec *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.IncRequests()
			next.ServeHTTP(w, r)
		})
	}
}

// withLogging writes one access line per request: Info for API paths,
// Debug for everything else.
func withLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)

			ev := logger.Debug()
			if isAPIPath(r.URL.Path) {
				ev = logger.Info()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Int("bytes", sw.bytes).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		})
	}
}

func withRecovery(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error().
						Interface("panic", rec).
						Str("path", r.URL.Path).
						Bytes("stack", debug.Stack()).
						Msg("Handler panicked")
					proxy.WriteError(w, http.StatusInternalServerError, "internal_error", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// bucket describes how one upstream's rate limit is reported.
type bucket struct {
	name string
	code string
}

var (
	pcBucket     = bucket{name: metrics.APIPC, code: proxy.ErrCodeRateLimited}
	stocksBucket = bucket{name: metrics.APIStocks, code: proxy.ErrCodeStocksRateLimited}
)

var errRateLimited = errors.New(proxy.ErrCodeRateLimited)

// withRateLimit rejects clients over their per-bucket quota with 429 and
// records the rejection against the bucket's upstream.
func withRateLimit(lim *ratelimit.Limiter, b bucket, rec *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if lim == nil || !lim.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := lim.Allow(r.Context(), b.name, clientIP(r))
			if !d.Allowed {
				rec.MarkError(b.name, errRateLimited)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.ResetIn.Seconds()))))
				proxy.WriteError(w, http.StatusTooManyRequests, b.code, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the connection's peer address. Forwarding headers are not
// trusted since the limiter would then be trivially bypassed.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func isAPIPath(path string) bool {
	return path == "/health" || path == "/api/pc" || strings.HasPrefix(path, proxy.StocksPrefix+"/")
}
