// Package logging configures structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"

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

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is attached to every entry when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: "fieldwire-client",
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

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

// ParseLevel converts a level name to zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// NewLogger creates a logger derived from the global one for component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow and internal state
//   - Outgoing requests (method, target, attempt, request_id)
//   - Token refresh start, waiters joining an in-flight refresh
//   - Pages fetched (page, items, cursor)
//   - Cache hits and conditional requests
//
// Info: normal operation events
//   - Access token refreshed
//   - Pagination and batch completion
//   - Server startup/shutdown
//
// Warn: conditions that don't prevent operation
//   - Token rejected, refreshing and retrying once
//   - Unexpected response status
//   - Refresh suppressed inside the retry interval
//   - Failed operations in a batch, pagination failures
//   - Cache errors (request proceeds without cache)
//
// Error: conditions requiring attention
//   - Token refresh failed
//   - Refreshed token rejected
//   - Transport failures
//   - Configuration errors
//
// Context Fields:
//   - component: token-provider, request-gateway, pagination, executor, proxy
//   - method, target, status: request identity and result
//   - request_id: X-Request-ID of the outgoing call
//   - attempt: 1 for the first send, 2 for the auth retry
//   - page, cursor, items: pagination progress
//   - index, worker_id: batch operation identity
