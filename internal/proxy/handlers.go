package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/kiosk-proxy/pkg/fanout"
	"github.com/Sternrassler/kiosk-proxy/pkg/metrics"
	"github.com/Sternrassler/kiosk-proxy/pkg/query"
	"github.com/Sternrassler/kiosk-proxy/pkg/upstream"
)

// StocksPrefix is the path prefix of the market-data endpoints.
const StocksPrefix = "/api/stocks"

// errKeyMissing is recorded when no market-data key is available.
var errKeyMissing = errors.New(ErrCodeStocksKeyMissing)

// HealthResponse is the /health body.
type HealthResponse struct {
	OK       bool             `json:"ok"`
	TS       int64            `json:"ts"`
	UptimeMS int64            `json:"uptimeMs"`
	Metrics  metrics.Snapshot `json:"metrics"`
}

// HandleHealth reports uptime and upstream health.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	WriteJSON(w, http.StatusOK, HealthResponse{
		OK:       true,
		TS:       now.UnixMilli(),
		UptimeMS: now.Sub(s.startedAt).Milliseconds(),
		Metrics:  s.metrics.Snapshot(),
	})
}

// HandlePC relays the collector's body and status.
func (s *Service) HandlePC(w http.ResponseWriter, r *http.Request) {
	resp, err := s.pc.FetchRaw(r.Context(), s.config.PCEndpoint, PCTimeout)
	if err != nil {
		s.metrics.MarkError(metrics.APIPC, err)
		WriteError(w, http.StatusBadGateway, ErrCodePCUnreachable, err.Error())
		return
	}

	s.metrics.MarkOK(metrics.APIPC)
	writeBody(w, resp.StatusCode, resp.Body)
}

type stocksHandler func(ctx context.Context, q url.Values, key string) (any, error)

func (s *Service) stocksEndpoints() map[string]stocksHandler {
	return map[string]stocksHandler{
		"/marketstatus": s.marketStatusEndpoint,
		"/snapshot":     s.snapshotEndpoint,
		"/aggs":         s.aggsEndpoint,
		"/heatmap":      s.heatmapEndpoint,
	}
}

// HandleStocks resolves the API key and dispatches /api/stocks/<endpoint>.
func (s *Service) HandleStocks(w http.ResponseWriter, r *http.Request) {
	key := s.resolveKey(r)
	if key == "" {
		s.metrics.MarkError(metrics.APIStocks, errKeyMissing)
		WriteError(w, http.StatusServiceUnavailable, ErrCodeStocksKeyMissing, "Set BTCT_STOCKS_API_KEY on the server.")
		return
	}

	endpoint := strings.TrimPrefix(r.URL.Path, StocksPrefix)
	handle, ok := s.endpoints[endpoint]
	if !ok {
		s.metrics.MarkError(metrics.APIStocks, errors.New(ErrCodeUnknownStocksEndpoint))
		WriteError(w, http.StatusNotFound, ErrCodeUnknownStocksEndpoint, endpoint)
		return
	}

	payload, err := handle(r.Context(), r.URL.Query(), key)
	if err != nil {
		status, code := classifyStocksError(err)
		if status != http.StatusBadRequest {
			s.metrics.MarkError(metrics.APIStocks, err)
			s.logger.Warn().
				Err(err).
				Str("endpoint", strings.TrimPrefix(endpoint, "/")).
				Str("kind", string(upstream.KindOf(err))).
				Int("status", status).
				Msg("Market-data request failed")
		}
		WriteError(w, status, code, errorDetail(err))
		return
	}

	s.metrics.MarkOK(metrics.APIStocks)
	WriteJSON(w, http.StatusOK, payload)
}

// MarketStatusResponse is the /api/stocks/marketstatus body.
type MarketStatusResponse struct {
	OK     bool            `json:"ok"`
	Market string          `json:"market"`
	Raw    json.RawMessage `json:"raw"`
}

func (s *Service) marketStatusEndpoint(ctx context.Context, _ url.Values, key string) (any, error) {
	raw, err := s.fetchMarketStatus(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return MarketStatusResponse{OK: true, Market: MarketState(raw), Raw: raw}, nil
}

// SnapshotResponse is the /api/stocks/snapshot body.
type SnapshotResponse struct {
	OK       bool     `json:"ok"`
	Ticker   string   `json:"ticker"`
	Snapshot Snapshot `json:"snapshot"`
}

func (s *Service) snapshotEndpoint(ctx context.Context, q url.Values, key string) (any, error) {
	symbol, err := query.SymbolOrDefault(q.Get("ticker"))
	if err != nil {
		return nil, err
	}

	bars, err := s.recentDaily(ctx, symbol, key, dailyDaysBack, dailyLimit)
	if err != nil {
		return nil, err
	}

	snap, err := buildSnapshot(bars)
	if err != nil {
		return nil, fmt.Errorf("build snapshot for %s: %w", symbol, err)
	}
	return SnapshotResponse{OK: true, Ticker: symbol, Snapshot: snap}, nil
}

// AggsResponse is the /api/stocks/aggs body.
type AggsResponse struct {
	OK      bool              `json:"ok"`
	Results []json.RawMessage `json:"results"`
	Ticker  string            `json:"ticker"`
}

func (s *Service) aggsEndpoint(ctx context.Context, q url.Values, key string) (any, error) {
	a, err := query.ParseAggs(q)
	if err != nil {
		return nil, err
	}

	from, to := a.Range(s.now())
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		url.PathEscape(a.Symbol), a.Multiplier, a.Timespan, from, to)
	params := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {fmt.Sprint(a.Limit)},
	}

	raw, err := s.fetchStocks(ctx, path, params, key)
	if err != nil {
		return nil, err
	}

	results, err := decodeResults(raw)
	if err != nil {
		return nil, fmt.Errorf("decode aggregates for %s: %w", a.Symbol, err)
	}
	if results == nil {
		results = []json.RawMessage{}
	}
	return AggsResponse{OK: true, Results: results, Ticker: a.Symbol}, nil
}

// HeatmapResponse is the /api/stocks/heatmap body.
type HeatmapResponse struct {
	OK    bool          `json:"ok"`
	Items []HeatmapItem `json:"items"`
}

// heatmapEndpoint never fails: symbols whose fetch fails or whose history
// is empty are left out.
func (s *Service) heatmapEndpoint(ctx context.Context, q url.Values, key string) (any, error) {
	symbols := query.ParseTickerList(q.Get("tickers"), MaxHeatmapTickers)

	res := fanout.Collect(ctx, s.config.Fanout, symbols, func(ctx context.Context, symbol string) (HeatmapItem, error) {
		bars, err := s.recentDaily(ctx, symbol, key, dailyDaysBack, dailyLimit)
		if err != nil {
			return HeatmapItem{}, err
		}
		if len(bars) == 0 {
			return HeatmapItem{}, fanout.ErrSkip
		}
		return buildHeatmapItem(symbol, bars)
	})

	return HeatmapResponse{OK: true, Items: res.Values()}, nil
}
