package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrSkip tells Collect to omit a key without counting it as a failure.
var ErrSkip = errors.New("fanout: skip")

// Config holds worker pool configuration
type Config struct {
	// MaxConcurrency is the maximum number of fetches in flight
	MaxConcurrency int
	// Timeout per key fetch; zero leaves only the caller's deadline
	Timeout time.Duration
	// Name labels log lines
	Name string
}

// DefaultConfig returns the configuration used for heatmap fan-out.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        10 * time.Second,
		Name:           "fanout",
	}
}

// Item is one successful fetch.
type Item[K comparable, V any] struct {
	Key   K
	Value V
}

// Failure is one failed fetch.
type Failure[K comparable] struct {
	Key K
	Err error
}

// Result holds successes in key order plus the failures.
type Result[K comparable, V any] struct {
	Items    []Item[K, V]
	Failures []Failure[K]
	Skipped  int
}

// Values returns the successful values in key order.
func (r Result[K, V]) Values() []V {
	out := make([]V, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Value
	}
	return out
}

type outcome[V any] struct {
	done  bool
	value V
	err   error
}

// Collect calls fetch once per key with at most cfg.MaxConcurrency calls in
// flight and waits for all of them. Keys not started before ctx is cancelled
// are reported as failures carrying ctx.Err().
func Collect[K comparable, V any](ctx context.Context, cfg Config, keys []K, fetch func(context.Context, K) (V, error)) Result[K, V] {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.Name == "" {
		cfg.Name = "fanout"
	}

	start := time.Now()
	outcomes := make([]outcome[V], len(keys))
	queue := make(chan int)

	workers := cfg.MaxConcurrency
	if workers > len(keys) {
		workers = len(keys)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				outcomes[idx] = run(ctx, cfg.Timeout, keys[idx], fetch)
			}
		}()
	}

feed:
	for idx := range keys {
		select {
		case queue <- idx:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	var res Result[K, V]
	for idx, o := range outcomes {
		key := keys[idx]
		switch {
		case !o.done:
			res.Failures = append(res.Failures, Failure[K]{Key: key, Err: ctx.Err()})
		case errors.Is(o.err, ErrSkip):
			res.Skipped++
			log.Debug().
				Str("fanout", cfg.Name).
				Str("key", fmt.Sprint(key)).
				Msg("Key skipped")
		case o.err != nil:
			res.Failures = append(res.Failures, Failure[K]{Key: key, Err: o.err})
			log.Warn().
				Err(o.err).
				Str("fanout", cfg.Name).
				Str("key", fmt.Sprint(key)).
				Msg("Fetch failed")
		default:
			res.Items = append(res.Items, Item[K, V]{Key: key, Value: o.value})
		}
	}

	log.Debug().
		Str("fanout", cfg.Name).
		Int("keys", len(keys)).
		Int("ok", len(res.Items)).
		Int("failed", len(res.Failures)).
		Int("skipped", res.Skipped).
		Dur("duration", time.Since(start)).
		Msg("Fan-out complete")

	return res
}

func run[K comparable, V any](ctx context.Context, timeout time.Duration, key K, fetch func(context.Context, K) (V, error)) outcome[V] {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fetch(ctx, key)
	return outcome[V]{done: true, value: v, err: err}
}
