//go:build integration

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/kiosk-proxy/internal/testutil"
	"github.com/Sternrassler/kiosk-proxy/pkg/ratelimit"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

// fixedWindowClock keeps every request in one limiter window.
func fixedWindowClock() time.Time {
	return time.Date(2026, 3, 2, 15, 0, 30, 0, time.UTC)
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("GET %s: body is not JSON: %q", url, body)
	}
	return resp.StatusCode, out
}

// TestFullRequestFlow covers limiter → handler → cache → upstream against a
// real listener and a Redis-backed limiter.
func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	lim, err := ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient), ratelimit.Config{Limit: 3, Window: time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter() error: %v", err)
	}

	lim.SetClock(fixedWindowClock)

	env := newTestEnv(t, func(o *Options) { o.Limiter = lim })
	env.mock.SetDailyBars("AAPL", testutil.NewDailyBarsResponse("AAPL", 180, 189))

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	t.Log("Request 1: cache miss")
	status, body := getJSON(t, srv.URL+"/api/stocks/snapshot?ticker=AAPL")
	if status != http.StatusOK {
		t.Fatalf("Request 1 status = %d, want 200", status)
	}
	if prev := body["snapshot"].(map[string]any)["prevDay"].(map[string]any)["c"]; prev != 180.0 {
		t.Errorf("prevDay.c = %v, want 180", prev)
	}

	t.Log("Request 2: cache hit")
	if status, _ := getJSON(t, srv.URL+"/api/stocks/heatmap?tickers=AAPL"); status != http.StatusOK {
		t.Fatalf("Request 2 status = %d, want 200", status)
	}
	if n := env.mock.RequestCount(); n != 1 {
		t.Errorf("upstream requests = %d, want 1", n)
	}

	t.Log("Request 3: last request in window")
	if status, _ := getJSON(t, srv.URL+"/api/stocks/snapshot?ticker=AAPL"); status != http.StatusOK {
		t.Fatalf("Request 3 status = %d, want 200", status)
	}

	t.Log("Request 4: rate limited")
	status, body = getJSON(t, srv.URL+"/api/stocks/snapshot?ticker=AAPL")
	if status != http.StatusTooManyRequests || body["error"] != "stocks_rate_limited" {
		t.Errorf("Request 4 = %d %v, want 429 stocks_rate_limited", status, body)
	}

	keys, err := redisClient.Keys(context.Background(), ratelimit.KeyPrefix+":stocks:*").Result()
	if err != nil {
		t.Fatalf("KEYS: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("limiter keys = %v, want one stocks window key", keys)
	}

	_, health := getJSON(t, srv.URL+"/health")
	stocks := health["metrics"].(map[string]any)["api"].(map[string]any)["stocks"].(map[string]any)
	if stocks["ok"] != 3.0 || stocks["error"] != 1.0 {
		t.Errorf("stocks health = %v, want 3 ok and 1 error", stocks)
	}
}

// TestRateLimitSharedAcrossInstances checks that two servers sharing Redis
// enforce a single quota per client.
func TestRateLimitSharedAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	newServer := func() *httptest.Server {
		lim, err := ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient), ratelimit.Config{Limit: 2, Window: time.Minute}, zerolog.Nop())
		if err != nil {
			t.Fatalf("NewLimiter() error: %v", err)
		}
		lim.SetClock(fixedWindowClock)
		env := newTestEnv(t, func(o *Options) { o.Limiter = lim })
		env.mock.SetResponse("/data.json", testutil.NewJSONResponse(`{"ok":true}`))
		srv := httptest.NewServer(env.handler)
		t.Cleanup(srv.Close)
		return srv
	}

	a, b := newServer(), newServer()

	for i, url := range []string{a.URL, b.URL} {
		if status, _ := getJSON(t, url+"/api/pc"); status != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i+1, status)
		}
	}
	if status, body := getJSON(t, a.URL+"/api/pc"); status != http.StatusTooManyRequests || body["error"] != "rate_limited" {
		t.Errorf("third request = %d %v, want 429 rate_limited", status, body)
	}
}
