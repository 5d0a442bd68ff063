// Package logger sets up the process-wide zerolog logger and a handful of
// helpers for attaching request-scoped fields.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

// Init configures the global logger from LOG_LEVEL / LOG_FORMAT. Call once
// at process startup, before any component logs.
func Init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	base := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(logLevel)

	if os.Getenv("LOG_FORMAT") == "console" {
		base = base.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	Logger = base
}

// WithRequestID returns a child logger that tags every entry with the
// ingest request ID.
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithFields returns a child logger carrying the given key/value pairs;
// keys are expected to be the low-cardinality field names components use
// throughout Switchboard (dedupe_key, lifecycle_state, target_butler, ...).
func WithFields(fields map[string]string) zerolog.Logger {
	ctx := Logger.With()
	for k, v := range fields {
		ctx = ctx.Str(k, v)
	}
	return ctx.Logger()
}
