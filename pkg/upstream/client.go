// Package upstream performs the outbound HTTP calls to the price collector
// and the market-data API, mapping every failure onto a typed *Error.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/kiosk-proxy/pkg/logging"
)

// Prometheus metrics for upstream calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_upstream_requests_total",
		Help: "Total upstream requests by upstream and outcome",
	}, []string{"upstream", "outcome"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kiosk_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by upstream",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 8},
	}, []string{"upstream"})
)

// User agents sent to each upstream.
const (
	CollectorUserAgent  = "btcticker-proxy/1.0"
	MarketDataUserAgent = "btcticker-stocks-proxy/1.0"
)

const (
	// APIKeyParam is the query parameter carrying the market-data key.
	APIKeyParam = "apiKey"

	// DefaultMaxBodyBytes caps a response body when Config.MaxBodyBytes is zero.
	DefaultMaxBodyBytes = 16 << 20

	redacted     = "REDACTED"
	maxErrorBody = 512
)

// Client issues GET requests to a single named upstream.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Name labels metrics, logs and errors ("pc", "stocks")
	Name string

	// UserAgent header sent on every request
	UserAgent string

	// Timeout applied when a call passes a zero timeout
	DefaultTimeout time.Duration

	// MaxBodyBytes rejects larger 2xx bodies; zero means DefaultMaxBodyBytes
	MaxBodyBytes int64
}

// DefaultConfig returns the configuration for a named upstream.
func DefaultConfig(name, userAgent string) Config {
	return Config{
		Name:           name,
		UserAgent:      userAgent,
		DefaultTimeout: 8 * time.Second,
	}
}

// RawResponse is an upstream response relayed without interpretation.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("upstream name is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("default timeout must be positive (got %s)", cfg.DefaultTimeout)
	}

	if cfg.MaxBodyBytes < 0 {
		return nil, fmt.Errorf("max body bytes cannot be negative (got %d)", cfg.MaxBodyBytes)
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Client{
		// Deadlines come from the per-call context.
		httpClient: &http.Client{},
		config:     cfg,
		logger:     logging.NewUpstreamLogger(cfg.Name),
	}, nil
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.config.Name
}

// FetchJSON calls baseURL+path with params plus the API key and returns the
// parsed JSON body. Any non-2xx status is a KindHTTPStatus error.
func (c *Client) FetchJSON(ctx context.Context, baseURL, path string, params url.Values, apiKey string, timeout time.Duration) (json.RawMessage, error) {
	query := url.Values{}
	for k, vs := range params {
		query[k] = append([]string(nil), vs...)
	}
	query.Set(APIKeyParam, apiKey)

	target := strings.TrimRight(baseURL, "/") + path + "?" + query.Encode()

	resp, err := c.do(ctx, target, timeout, apiKey)
	if err != nil {
		return nil, err
	}

	if !json.Valid(resp.Body) {
		c.observe("malformed_json")
		return nil, &Error{
			Upstream: c.config.Name,
			Kind:     KindMalformedJSON,
			URL:      redactURL(target),
			Err:      errors.New("response body is not valid JSON"),
		}
	}

	c.observe("ok")
	return json.RawMessage(resp.Body), nil
}

// FetchRaw calls rawURL and returns status and body verbatim.
func (c *Client) FetchRaw(ctx context.Context, rawURL string, timeout time.Duration) (*RawResponse, error) {
	resp, err := c.do(ctx, rawURL, timeout, "")
	if err != nil {
		return nil, err
	}
	c.observe("ok")
	return resp, nil
}

// do performs the GET and maps transport and status failures.
func (c *Client) do(ctx context.Context, target string, timeout time.Duration, secret string) (*RawResponse, error) {
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	safeURL := redactURL(target)

	start := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(c.config.Name).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.observe(string(KindConnectionFailed))
		return nil, &Error{
			Upstream: c.config.Name,
			Kind:     KindConnectionFailed,
			URL:      safeURL,
			Err:      fmt.Errorf("create request: %w", stripURLError(err)),
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", safeURL).Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyTransportError(ctx, err)
		c.observe(string(kind))
		c.logger.Warn().Str("url", safeURL).Str("kind", string(kind)).Msg("Upstream request failed")
		return nil, &Error{
			Upstream: c.config.Name,
			Kind:     kind,
			URL:      safeURL,
			Err:      stripURLError(err),
		}
	}
	defer resp.Body.Close()

	// One byte past the cap tells an oversized body from one that fits exactly.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		kind := classifyTransportError(ctx, err)
		c.observe(string(kind))
		return nil, &Error{
			Upstream: c.config.Name,
			Kind:     kind,
			URL:      safeURL,
			Err:      fmt.Errorf("read response body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(fmt.Sprintf("%d", resp.StatusCode))
		c.logger.Warn().
			Str("url", safeURL).
			Int("status", resp.StatusCode).
			Msg("Upstream returned error status")
		return nil, &Error{
			Upstream:   c.config.Name,
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Body:       truncate(redactSecret(string(body), secret), maxErrorBody),
			URL:        safeURL,
		}
	}

	if int64(len(body)) > c.config.MaxBodyBytes {
		c.observe(string(KindBodyTooLarge))
		c.logger.Warn().
			Str("url", safeURL).
			Int64("limit", c.config.MaxBodyBytes).
			Msg("Upstream body exceeds limit")
		return nil, &Error{
			Upstream:   c.config.Name,
			Kind:       KindBodyTooLarge,
			StatusCode: resp.StatusCode,
			URL:        safeURL,
			Err:        fmt.Errorf("response body exceeds %d bytes", c.config.MaxBodyBytes),
		}
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

func (c *Client) observe(outcome string) {
	upstreamRequestsTotal.WithLabelValues(c.config.Name, outcome).Inc()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// classifyTransportError separates deadline failures from other transport errors.
func classifyTransportError(ctx context.Context, err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnectionFailed
}

// stripURLError drops the *url.Error wrapper, whose message embeds the
// unredacted request URL.
func stripURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// redactURL replaces the API key in a URL with a placeholder.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has(APIKeyParam) {
		q.Set(APIKeyParam, redacted)
		u.RawQuery = q.Encode()
	}
	u.User = nil
	return u.String()
}

func redactSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, redacted)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
