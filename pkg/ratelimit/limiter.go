package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_rate_limit_blocks_total",
		Help: "Total number of requests rejected by the client rate limiter",
	}, []string{"bucket"})

	rateLimitStoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_rate_limit_store_errors_total",
		Help: "Total number of counter store failures (request allowed)",
	})
)

// Config holds limiter configuration
type Config struct {
	// Limit is the number of requests allowed per client, bucket and window.
	// Zero disables limiting.
	Limit int
	// Window is the fixed window length
	Window time.Duration
}

// DefaultConfig returns 120 requests per minute.
func DefaultConfig() Config {
	return Config{
		Limit:  120,
		Window: time.Minute,
	}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Count is the number of requests seen in the current window, this one included.
	Count int64
	Limit int
	// ResetIn is the time until the current window ends.
	ResetIn time.Duration
}

// Limiter counts requests per (bucket, client) in fixed windows.
type Limiter struct {
	store  Store
	config Config
	now    func() time.Time
	logger zerolog.Logger
}

// NewLimiter creates a limiter over store.
func NewLimiter(store Store, config Config, logger zerolog.Logger) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	if config.Limit < 0 {
		return nil, fmt.Errorf("rate limit must not be negative (got %d)", config.Limit)
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &Limiter{
		store:  store,
		config: config,
		now:    time.Now,
		logger: logger,
	}, nil
}

// SetClock replaces the time source (for testing).
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Enabled reports whether the limiter rejects anything at all.
func (l *Limiter) Enabled() bool {
	return l.config.Limit > 0
}

// Allow counts one request from client against bucket. A store failure
// allows the request and is logged.
func (l *Limiter) Allow(ctx context.Context, bucket, client string) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true}
	}

	now := l.now()
	window := now.UnixNano() / int64(l.config.Window)
	windowEnd := time.Unix(0, (window+1)*int64(l.config.Window))
	resetIn := windowEnd.Sub(now)

	count, err := l.store.Incr(ctx, windowKey(bucket, client, window), l.config.Window)
	if err != nil {
		rateLimitStoreErrorsTotal.Inc()
		l.logger.Warn().
			Err(err).
			Str("bucket", bucket).
			Msg("Rate limit store unavailable, allowing request")
		return Decision{Allowed: true, Limit: l.config.Limit, ResetIn: resetIn}
	}

	d := Decision{
		Allowed: count <= int64(l.config.Limit),
		Count:   count,
		Limit:   l.config.Limit,
		ResetIn: resetIn,
	}
	if !d.Allowed {
		rateLimitBlocksTotal.WithLabelValues(bucket).Inc()
		l.logger.Debug().
			Str("bucket", bucket).
			Str("client", client).
			Int64("count", count).
			Dur("reset_in", resetIn).
			Msg("Client rate limit exceeded")
	}
	return d
}

func windowKey(bucket, client string, window int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", KeyPrefix, bucket, client, window)
}
