// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as written in LOG_LEVEL or log.level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// levels maps accepted names, lower-cased, to zerolog levels.
var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr when nil.
	Output io.Writer

	// Service, when set, is attached to every line as "service".
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "kiosk-proxy",
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	_, ok := levels[strings.ToLower(s)]
	return ok
}

// parseLevel falls back to info for unknown names.
func parseLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[strings.ToLower(string(level))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewUpstreamLogger is NewLogger("upstream") tagged with the upstream name.
func NewUpstreamLogger(upstream string) zerolog.Logger {
	return log.With().Str("component", "upstream").Str("upstream", upstream).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hit/miss per store and key
//   - Outgoing upstream URLs (API key redacted)
//   - Static file access lines
//   - Rate limit rejections
//
// Info: Normal operation events
//   - API access lines (method, path, status, duration)
//   - Server startup/shutdown
//   - Rate limit store selection (redis or memory)
//
// Warn: Warning conditions that don't prevent operation
//   - Upstream failures (timeout, connection, HTTP status, malformed JSON)
//   - Heatmap symbols dropped after a failed fetch
//   - Rate limit store unavailable (request allowed)
//   - Redis unreachable at startup (memory fallback)
//
// Error: Error conditions requiring attention
//   - Handler panics
//   - Listener failures
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (proxy, server, upstream, ratelimit)
//   - upstream: upstream name ("pc", "stocks")
//   - endpoint: stocks endpoint (marketstatus, snapshot, aggs, heatmap)
//   - status: HTTP status code
//   - duration: request duration
//   - kind: upstream error kind
//   - ticker: normalized symbol
//
// The API key never appears in a log field.
