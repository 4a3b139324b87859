// Package proxy implements the kiosk API handlers: the price-collector
// pass-through, the market-data endpoints and health reporting.
//
// A Service owns its caches and metrics recorder; nothing is package-global,
// so tests build as many independent services as they need.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/kiosk-proxy/pkg/cache"
	"github.com/Sternrassler/kiosk-proxy/pkg/fanout"
	"github.com/Sternrassler/kiosk-proxy/pkg/logging"
	"github.com/Sternrassler/kiosk-proxy/pkg/metrics"
	"github.com/Sternrassler/kiosk-proxy/pkg/query"
	"github.com/Sternrassler/kiosk-proxy/pkg/upstream"
)

// Upstream timeouts.
const (
	PCTimeout     = 5 * time.Second
	StocksTimeout = 8 * time.Second
)

// Cache freshness windows.
const (
	MarketStatusTTL = 20 * time.Second
	DailyTTL        = 90 * time.Second
)

const (
	// MaxHeatmapTickers caps the symbols one heatmap request may ask for.
	MaxHeatmapTickers = 20

	dailyDaysBack = 10
	dailyLimit    = 10

	marketStatusPath = "/v1/marketstatus/now"
)

// RawFetcher is the collector side of *upstream.Client.
type RawFetcher interface {
	FetchRaw(ctx context.Context, rawURL string, timeout time.Duration) (*upstream.RawResponse, error)
}

// JSONFetcher is the market-data side of *upstream.Client.
type JSONFetcher interface {
	FetchJSON(ctx context.Context, baseURL, path string, params url.Values, apiKey string, timeout time.Duration) (json.RawMessage, error)
}

// Config holds service configuration
type Config struct {
	PCEndpoint    string
	StocksAPIBase string
	StocksAPIKey  string
	// AllowQueryKey lets callers supply apiKey in the query string.
	AllowQueryKey bool
	// Clock drives cache freshness, date ranges and health timestamps.
	Clock cache.Clock
	// Fanout bounds heatmap concurrency.
	Fanout fanout.Config
}

// Service serves the /health, /api/pc and /api/stocks/* endpoints.
type Service struct {
	config  Config
	pc      RawFetcher
	stocks  JSONFetcher
	metrics *metrics.Recorder

	marketStatus *cache.Store[json.RawMessage]
	daily        *cache.Store[[]json.RawMessage]
	endpoints    map[string]stocksHandler

	now       cache.Clock
	startedAt time.Time
	logger    zerolog.Logger
}

// New creates a service. rec may be shared with the HTTP middleware.
func New(cfg Config, pc RawFetcher, stocks JSONFetcher, rec *metrics.Recorder) (*Service, error) {
	if pc == nil || stocks == nil {
		return nil, fmt.Errorf("both upstream fetchers are required")
	}
	if rec == nil {
		return nil, fmt.Errorf("metrics recorder is required")
	}
	if cfg.PCEndpoint == "" {
		return nil, fmt.Errorf("collector endpoint is required")
	}
	if cfg.StocksAPIBase == "" {
		return nil, fmt.Errorf("market-data API base is required")
	}
	cfg.StocksAPIBase = strings.TrimRight(cfg.StocksAPIBase, "/")
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Fanout.MaxConcurrency <= 0 {
		cfg.Fanout = fanout.DefaultConfig()
		cfg.Fanout.Name = "heatmap"
	}

	s := &Service{
		config:       cfg,
		pc:           pc,
		stocks:       stocks,
		metrics:      rec,
		marketStatus: cache.NewStore[json.RawMessage](cache.StoreMarketStatus, cfg.Clock),
		daily:        cache.NewStore[[]json.RawMessage](cache.StoreDaily, cfg.Clock),
		now:          cfg.Clock,
		startedAt:    cfg.Clock(),
		logger:       logging.NewLogger("proxy"),
	}
	s.endpoints = s.stocksEndpoints()
	return s, nil
}

// Metrics returns the recorder the service reports to.
func (s *Service) Metrics() *metrics.Recorder {
	return s.metrics
}

// resolveKey picks the caller's apiKey when query keys are allowed and
// present, otherwise the configured key. Empty means no key is available.
func (s *Service) resolveKey(r *http.Request) string {
	if s.config.AllowQueryKey {
		if k := strings.TrimSpace(r.URL.Query().Get(upstream.APIKeyParam)); k != "" {
			return k
		}
	}
	return s.config.StocksAPIKey
}

func (s *Service) fetchStocks(ctx context.Context, path string, params url.Values, key string) (json.RawMessage, error) {
	return s.stocks.FetchJSON(ctx, s.config.StocksAPIBase, path, params, key, StocksTimeout)
}

// fetchMarketStatus returns the cached payload while it is fresh. Payloads
// that decode to a JSON false value are returned but never cached.
func (s *Service) fetchMarketStatus(ctx context.Context, key string) (json.RawMessage, error) {
	if raw, ok := s.marketStatus.Get(cache.MarketStatusKey, MarketStatusTTL); ok {
		return raw, nil
	}

	raw, err := s.fetchStocks(ctx, marketStatusPath, nil, key)
	if err != nil {
		return nil, err
	}
	if truthy(raw) {
		s.marketStatus.Set(cache.MarketStatusKey, raw)
	}
	return raw, nil
}

type aggsPayload struct {
	Results []json.RawMessage `json:"results"`
}

// recentDaily returns the recent daily bars for symbol, oldest first,
// cached per symbol. An empty history is cached too.
func (s *Service) recentDaily(ctx context.Context, symbol, key string, daysBack, limit int) ([]json.RawMessage, error) {
	cacheKey := cache.DailyKey(symbol)
	if bars, ok := s.daily.Get(cacheKey, DailyTTL); ok {
		return bars, nil
	}

	from, to := query.DailyRange(s.now(), daysBack)
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s", url.PathEscape(symbol), from, to)
	params := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {fmt.Sprint(limit)},
	}

	raw, err := s.fetchStocks(ctx, path, params, key)
	if err != nil {
		return nil, err
	}

	bars, err := decodeResults(raw)
	if err != nil {
		return nil, fmt.Errorf("decode daily bars for %s: %w", symbol, err)
	}
	if bars == nil {
		bars = []json.RawMessage{}
	}

	s.daily.Set(cacheKey, bars)
	return bars, nil
}

// decodeResults extracts the results array from an aggregates payload.
// A null payload or a missing or null results field yields nil.
func decodeResults(raw json.RawMessage) ([]json.RawMessage, error) {
	if isNull(raw) {
		return nil, nil
	}
	var p aggsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p.Results, nil
}
