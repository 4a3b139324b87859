package query

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Timespan is the bar width unit accepted by the aggregates endpoint.
type Timespan string

const (
	Minute Timespan = "minute"
	Hour   Timespan = "hour"
	Day    Timespan = "day"
)

// Aggregate parameter bounds and defaults.
const (
	DefaultMultiplier = 1
	DefaultTimespan   = Minute
	DefaultLimit      = 500

	MinMultiplier = 1
	MaxMultiplier = 60
	MinLimit      = 50
	MaxLimit      = 5000

	// lookbackPadding widens the window so gaps (weekends, halts) still
	// leave limit bars available.
	lookbackPadding = 30

	// DateLayout is the upstream date format.
	DateLayout = "2006-01-02"
)

// ParseTimespan accepts minute, hour or day, case-insensitively.
func ParseTimespan(raw string) (Timespan, error) {
	ts := Timespan(strings.ToLower(strings.TrimSpace(raw)))
	switch ts {
	case Minute, Hour, Day:
		return ts, nil
	}
	return "", &ValidationError{Code: CodeInvalidTimespan, Value: string(ts)}
}

// Before returns the instant n units of the timespan before now. Days use
// calendar arithmetic since 301800 days overflow a time.Duration.
func (t Timespan) Before(now time.Time, n int) time.Time {
	switch t {
	case Day:
		return now.AddDate(0, 0, -n)
	case Hour:
		return now.Add(-time.Duration(n) * time.Hour)
	default:
		return now.Add(-time.Duration(n) * time.Minute)
	}
}

// Aggs is a normalized aggregates request.
type Aggs struct {
	Symbol     string
	Multiplier int
	Timespan   Timespan
	Limit      int
}

// ParseAggs reads ticker, mult, span and limit from q. The timespan is
// checked before the ticker. Missing or non-numeric mult and limit fall back
// to their defaults, then both are clamped.
func ParseAggs(q url.Values) (Aggs, error) {
	span := DefaultTimespan
	if raw := q.Get("span"); raw != "" {
		ts, err := ParseTimespan(raw)
		if err != nil {
			return Aggs{}, err
		}
		span = ts
	}

	sym, err := SymbolOrDefault(q.Get("ticker"))
	if err != nil {
		return Aggs{}, err
	}

	return Aggs{
		Symbol:     sym,
		Multiplier: ClampMultiplier(intOr(q.Get("mult"), DefaultMultiplier)),
		Timespan:   span,
		Limit:      ClampLimit(intOr(q.Get("limit"), DefaultLimit)),
	}, nil
}

// Lookback is the window size in timespan units: mult × (limit + 30).
func (a Aggs) Lookback() int {
	return a.Multiplier * (a.Limit + lookbackPadding)
}

// Range is the UTC date range covering the lookback window ending at now.
func (a Aggs) Range(now time.Time) (from, to string) {
	return DateRange(now, a.Timespan, a.Lookback())
}

// ClampMultiplier bounds n to [1, 60].
func ClampMultiplier(n int) int {
	return clamp(n, MinMultiplier, MaxMultiplier)
}

// ClampLimit bounds n to [50, 5000].
func ClampLimit(n int) int {
	return clamp(n, MinLimit, MaxLimit)
}

// DateRange returns the UTC dates n span units before now and of now.
func DateRange(now time.Time, span Timespan, n int) (from, to string) {
	now = now.UTC()
	return span.Before(now, n).Format(DateLayout), now.Format(DateLayout)
}

// DailyRange is DateRange over max(3, daysBack) days.
func DailyRange(now time.Time, daysBack int) (from, to string) {
	if daysBack < 3 {
		daysBack = 3
	}
	return DateRange(now, Day, daysBack)
}

func intOr(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
