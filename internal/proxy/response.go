package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/kiosk-proxy/pkg/query"
	"github.com/Sternrassler/kiosk-proxy/pkg/upstream"
)

// Error codes returned in {ok:false, error, detail} bodies.
const (
	ErrCodePCUnreachable         = "pc_endpoint_unreachable"
	ErrCodeRateLimited           = "rate_limited"
	ErrCodeStocksKeyMissing      = "stocks_api_key_missing"
	ErrCodeStocksRateLimited     = "stocks_rate_limited"
	ErrCodeStocksUpstream        = "stocks_upstream_error"
	ErrCodeStocksProxy           = "stocks_proxy_error"
	ErrCodeUnknownStocksEndpoint = "unknown_stocks_endpoint"
)

// ErrorBody is the JSON body of every failed API response.
type ErrorBody struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// WriteJSON writes v with the headers every API response carries.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		body = []byte(`{"ok":false,"error":"encode_failed","detail":""}`)
	}
	writeBody(w, status, body)
}

// WriteError writes an {ok:false, error, detail} body.
func WriteError(w http.ResponseWriter, status int, code, detail string) {
	WriteJSON(w, status, ErrorBody{OK: false, Error: code, Detail: detail})
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(body)
}

// classifyStocksError maps a market-data failure to status and code.
// Validation errors are 400 with the error's own code.
func classifyStocksError(err error) (status int, code string) {
	var verr *query.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Code
	}

	if upstream.IsRateLimited(err) {
		return http.StatusTooManyRequests, ErrCodeStocksRateLimited
	}
	if upstream.KindOf(err) != "" {
		return http.StatusBadGateway, ErrCodeStocksUpstream
	}

	return http.StatusInternalServerError, ErrCodeStocksProxy
}

// errorDetail is the client-facing detail for err.
func errorDetail(err error) string {
	var verr *query.ValidationError
	if errors.As(err, &verr) {
		return verr.Value
	}
	return err.Error()
}
