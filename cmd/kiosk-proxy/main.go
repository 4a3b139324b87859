package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/kiosk-proxy/internal/config"
	"github.com/Sternrassler/kiosk-proxy/internal/proxy"
	"github.com/Sternrassler/kiosk-proxy/internal/server"
	"github.com/Sternrassler/kiosk-proxy/pkg/logging"
	"github.com/Sternrassler/kiosk-proxy/pkg/metrics"
	"github.com/Sternrassler/kiosk-proxy/pkg/ratelimit"
	"github.com/Sternrassler/kiosk-proxy/pkg/upstream"
)

const redisPingTimeout = 2 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "kiosk-proxy: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "kiosk-proxy: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logger := logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	logger.Info().
		Str("url", "http://localhost:"+cfg.Port).
		Str("doc_root", cfg.DocRoot).
		Str("pc_endpoint", cfg.PC.Endpoint).
		Str("stocks_api_base", cfg.Stocks.APIBase).
		Bool("stocks_key_configured", cfg.HasStocksKey()).
		Bool("stocks_query_key_allowed", cfg.Stocks.AllowQueryKey).
		Msg("Starting kiosk proxy")

	return server.Run(ctx, server.NewHTTPServer(cfg.Addr(), handler), ln, logger)
}

// buildHandler wires upstream clients, the proxy service and the rate
// limiter into the router. cleanup releases the Redis connection, if any.
func buildHandler(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	pc, err := upstream.New(upstream.Config{
		Name:           metrics.APIPC,
		UserAgent:      upstream.CollectorUserAgent,
		DefaultTimeout: proxy.PCTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create collector client: %w", err)
	}

	stocks, err := upstream.New(upstream.Config{
		Name:           metrics.APIStocks,
		UserAgent:      upstream.MarketDataUserAgent,
		DefaultTimeout: proxy.StocksTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create market-data client: %w", err)
	}

	svc, err := proxy.New(proxy.Config{
		PCEndpoint:    cfg.PC.Endpoint,
		StocksAPIBase: cfg.Stocks.APIBase,
		StocksAPIKey:  cfg.Stocks.APIKey,
		AllowQueryKey: cfg.Stocks.AllowQueryKey,
	}, pc, stocks, metrics.NewRecorder())
	if err != nil {
		return nil, nil, fmt.Errorf("create proxy service: %w", err)
	}

	lim, cleanup, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	return server.NewRouter(svc, server.Options{
		DocRoot:     cfg.DocRoot,
		Limiter:     lim,
		CORSOrigins: cfg.CORSOrigins,
	}), cleanup, nil
}

// newLimiter uses Redis when REDIS_URL is set and answers a ping, and an
// in-memory store otherwise. A disabled limit returns a nil limiter.
func newLimiter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*ratelimit.Limiter, func(), error) {
	noop := func() {}
	if cfg.RateLimitPerMin == 0 {
		logger.Info().Msg("Client rate limiting disabled")
		return nil, noop, nil
	}

	limCfg := ratelimit.Config{Limit: cfg.RateLimitPerMin, Window: time.Minute}
	limLogger := logging.NewLogger("ratelimit")

	store, cleanup, err := newLimiterStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, nil, err
	}

	lim, err := ratelimit.NewLimiter(store, limCfg, limLogger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create rate limiter: %w", err)
	}
	return lim, cleanup, nil
}

func newLimiterStore(ctx context.Context, redisURL string, logger zerolog.Logger) (ratelimit.Store, func(), error) {
	noop := func() {}
	if redisURL == "" {
		logger.Info().Str("store", "memory").Msg("Client rate limiting enabled")
		return ratelimit.NewMemoryStore(nil), noop, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		logger.Warn().
			Err(err).
			Str("addr", opts.Addr).
			Msg("Redis unreachable, using in-memory rate limit store")
		return ratelimit.NewMemoryStore(nil), noop, nil
	}

	logger.Info().Str("store", "redis").Str("addr", opts.Addr).Msg("Client rate limiting enabled")
	return ratelimit.NewRedisStore(client), func() { client.Close() }, nil
}
