// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// redactKeep is the number of leading characters Redact leaves visible.
const redactKeep = 10

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: true for a CLI run).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: true,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var output io.Writer = out
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a user supplied level name, falling back to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Redact shortens a secret-bearing value (cookie values, tokens) so it can be
// logged without leaking it.
func Redact(value string) string {
	if len(value) <= redactKeep {
		return strings.Repeat("*", len(value))
	}
	return value[:redactKeep] + "..."
}

// ErrorChain logs err and every error it wraps, outermost first.
func ErrorChain(logger zerolog.Logger, msg string, err error) {
	logger.Error().Err(err).Msg(msg)
	depth := 0
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		depth++
		logger.Error().Int("depth", depth).Str("cause", cause.Error()).Msg("caused by")
	}
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Session state machine transitions
//   - Per-item request attempts and status codes
//   - Cookie names (values always go through Redact)
//
// Info: Normal operation events
//   - Login outcome (cached or fresh)
//   - Watchlist size, fetch start/finish
//   - Report written
//
// Warn: Warning conditions that don't prevent operation
//   - Cached session without expiry
//   - Session cache read/write failures (fallback to login)
//   - Item retry attempts
//
// Error: Error conditions requiring attention
//   - Login failure
//   - Item retries exhausted (aborts the run)
//   - Configuration errors
//
// Context Fields:
//   - component: emitting component (session-manager, catalog, fetcher, ...)
//   - state: session manager state
//   - item_id: catalog item identifier
//   - status: HTTP status code
//   - attempt: 1-based attempt number
//   - worker_id: fetcher worker index
