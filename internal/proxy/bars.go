package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Market states reported by /api/stocks/marketstatus.
const (
	MarketOpen   = "open"
	MarketClosed = "closed"
)

var hundred = decimal.NewFromInt(100)

// MarketState maps a market-status payload to open or closed. Only a string
// "market" field equal to "open" after trimming and case folding is open.
func MarketState(raw json.RawMessage) string {
	var payload struct {
		Market json.RawMessage `json:"market"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return MarketClosed
	}
	var market string
	if err := json.Unmarshal(payload.Market, &market); err != nil {
		return MarketClosed
	}
	if strings.EqualFold(strings.TrimSpace(market), MarketOpen) {
		return MarketOpen
	}
	return MarketClosed
}

// barFields is a bar reduced to the fields the snapshot relays. Absent
// fields stay nil and encode as null.
type barFields struct {
	O json.RawMessage `json:"o"`
	H json.RawMessage `json:"h"`
	L json.RawMessage `json:"l"`
	C json.RawMessage `json:"c"`
	V json.RawMessage `json:"v"`
}

func decodeBar(raw json.RawMessage) (barFields, error) {
	var b barFields
	if err := json.Unmarshal(raw, &b); err != nil {
		return barFields{}, fmt.Errorf("decode bar: %w", err)
	}
	return b, nil
}

// Snapshot is the latest daily bar plus the previous close.
type Snapshot struct {
	Day     any `json:"day"`
	PrevDay any `json:"prevDay"`
}

type prevDay struct {
	C json.RawMessage `json:"c"`
}

func emptySnapshot() Snapshot {
	return Snapshot{Day: struct{}{}, PrevDay: struct{}{}}
}

// buildSnapshot uses the last bar as the day and the one before it as the
// previous day, falling back to the last bar when there is only one.
func buildSnapshot(bars []json.RawMessage) (Snapshot, error) {
	if len(bars) == 0 {
		return emptySnapshot(), nil
	}
	day, prev, err := lastTwo(bars)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Day: day, PrevDay: prevDay{C: prev.C}}, nil
}

// HeatmapItem is one symbol's latest close and change from the previous close.
type HeatmapItem struct {
	Ticker    string  `json:"ticker"`
	ChangePct float64 `json:"changePct"`
	Price     float64 `json:"price"`
}

// buildHeatmapItem computes (last-prev)/prev*100, or 0 when prev is 0.
// Missing or null closes count as 0. bars must not be empty.
func buildHeatmapItem(symbol string, bars []json.RawMessage) (HeatmapItem, error) {
	day, prev, err := lastTwo(bars)
	if err != nil {
		return HeatmapItem{}, err
	}
	last, err := closeValue(day.C)
	if err != nil {
		return HeatmapItem{}, err
	}
	prevClose, err := closeValue(prev.C)
	if err != nil {
		return HeatmapItem{}, err
	}

	pct := decimal.Zero
	if !prevClose.IsZero() {
		pct = last.Sub(prevClose).Div(prevClose).Mul(hundred)
	}

	return HeatmapItem{
		Ticker:    symbol,
		ChangePct: pct.InexactFloat64(),
		Price:     last.InexactFloat64(),
	}, nil
}

func lastTwo(bars []json.RawMessage) (day, prev barFields, err error) {
	day, err = decodeBar(bars[len(bars)-1])
	if err != nil {
		return barFields{}, barFields{}, err
	}
	if len(bars) == 1 {
		return day, day, nil
	}
	prev, err = decodeBar(bars[len(bars)-2])
	if err != nil {
		return barFields{}, barFields{}, err
	}
	return day, prev, nil
}

// closeValue parses a close that may be a number, a numeric string, null or
// absent.
func closeValue(raw json.RawMessage) (decimal.Decimal, error) {
	if isNull(raw) {
		return decimal.Zero, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("close %s is not a number", raw)
	}
	return d, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// truthy reports whether raw decodes to a value other than null, false, 0,
// "", [] or {}.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}
