package query

import "fmt"

// Validation error codes, reported to clients verbatim.
const (
	CodeInvalidTicker   = "invalid_ticker"
	CodeInvalidTimespan = "invalid_timespan"
)

// ValidationError is a rejected request parameter.
type ValidationError struct {
	Code  string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %q", e.Code, e.Value)
}
