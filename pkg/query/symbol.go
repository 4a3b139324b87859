package query

import "strings"

const (
	// DefaultSymbol is used when a request carries no ticker.
	DefaultSymbol = "AAPL"

	maxSymbolLen = 12
)

// DefaultWatchlist is the heatmap list when the caller names no valid symbol.
var DefaultWatchlist = []string{
	"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL",
	"META", "TSLA", "AMD", "NFLX", "PLTR",
}

// NormalizeSymbol trims and uppercases raw and checks it is 1-12 ASCII
// letters or digits. A rejected symbol is reported in its normalized form.
func NormalizeSymbol(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !validSymbol(s) {
		return "", &ValidationError{Code: CodeInvalidTicker, Value: s}
	}
	return s, nil
}

// SymbolOrDefault normalizes raw, substituting DefaultSymbol when it is blank.
func SymbolOrDefault(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultSymbol, nil
	}
	return NormalizeSymbol(raw)
}

// ParseTickerList splits a comma-separated list, drops invalid entries and
// keeps at most limit symbols in request order. An empty result yields a copy
// of DefaultWatchlist.
func ParseTickerList(raw string, limit int) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		sym, err := NormalizeSymbol(part)
		if err != nil {
			continue
		}
		out = append(out, sym)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultWatchlist...)
	}
	return out
}

func validSymbol(s string) bool {
	if len(s) == 0 || len(s) > maxSymbolLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
