package cache

import "strings"

// Store names used for metric labels.
const (
	StoreMarketStatus = "marketstatus"
	StoreDaily        = "daily"
)

// MarketStatusKey is the single slot holding the market-status payload.
const MarketStatusKey = "marketstatus"

// DailyKey returns the slot for a symbol's recent daily bars.
//
// Example:
//
//	daily:AAPL
func DailyKey(symbol string) string {
	return "daily:" + strings.ToUpper(strings.TrimSpace(symbol))
}
