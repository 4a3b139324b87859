// Package testutil provides test doubles for the collector and market-data upstreams.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is what the mock saw for one request.
type RecordedRequest struct {
	Path   string
	Query  url.Values
	Header http.Header
}

// MockUpstream is a configurable upstream server that counts requests.
//
// Handlers are registered by path prefix; the longest matching prefix wins.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests []RecordedRequest
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		})
		handler := mock.match(r.URL.Path)
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"NOT_FOUND"}`))
	}))

	return mock
}

// match must be called with mu held.
func (m *MockUpstream) match(path string) func(w http.ResponseWriter, r *http.Request) {
	best := ""
	var handler func(w http.ResponseWriter, r *http.Request)
	for prefix, h := range m.handlers {
		if strings.HasPrefix(path, prefix) && len(prefix) >= len(best) {
			best = prefix
			handler = h
		}
	}
	return handler
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears recorded requests. Handlers are kept.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a path prefix.
func (m *MockUpstream) SetHandler(prefix string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[prefix] = handler
}

// SetResponse configures a simple response for a path prefix.
func (m *MockUpstream) SetResponse(prefix string, resp MockResponse) {
	m.SetHandler(prefix, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetDailyBars configures the daily aggregates response for one symbol.
func (m *MockUpstream) SetDailyBars(symbol string, resp MockResponse) {
	m.SetResponse(fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/", symbol), resp)
}

// RequestCount returns the number of requests made to the server.
func (m *MockUpstream) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// RequestCountFor returns the number of requests whose path starts with prefix.
func (m *MockUpstream) RequestCountFor(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, req := range m.requests {
		if strings.HasPrefix(req.Path, prefix) {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request, or nil.
func (m *MockUpstream) LastRequest() *RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

// Requests returns a copy of all recorded requests.
func (m *MockUpstream) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewMarketStatusResponse creates a market-status payload.
func NewMarketStatusResponse(market string) MockResponse {
	return NewJSONResponse(fmt.Sprintf(`{"market":%q,"serverTime":"2026-03-02T10:30:00-05:00"}`, market))
}

// Bar is a daily aggregate as the market-data API returns it.
type Bar struct {
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
	T int64   `json:"t"`
}

// NewDailyBarsResponse creates an aggregates payload with one bar per close.
func NewDailyBarsResponse(symbol string, closes ...float64) MockResponse {
	start := time.Date(2026, 2, 23, 5, 0, 0, 0, time.UTC)
	bars := make([]Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, Bar{
			O: c - 1,
			H: c + 2,
			L: c - 2,
			C: c,
			V: 1000 * float64(i+1),
			T: start.AddDate(0, 0, i).UnixMilli(),
		})
	}
	results, _ := json.Marshal(bars)
	return NewJSONResponse(fmt.Sprintf(
		`{"ticker":%q,"status":"OK","adjusted":true,"resultsCount":%d,"results":%s}`,
		symbol, len(bars), results))
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status":"ERROR","error":"You've exceeded the maximum requests per minute"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status":"ERROR","error":"Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}
