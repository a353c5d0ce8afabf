// Package applog configures process-wide structured logging.
//
// The gateway does not own a log shipping pipeline (that is treated as an
// external concern); it only emits structured events to stdout/stderr via
// zerolog and hands out child loggers tagged per component/generation.
package applog

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger from a level string (e.g. "info",
// "debug"). An empty or invalid level falls back to "info".
func Init(level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(parsed).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// For returns a child logger tagged with the owning component name, the way
// request handlers and background loops in this gateway identify themselves
// in structured output.
func For(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// WithGeneration tags a logger with the reload generation it belongs to, so
// log lines from a drained-but-still-finishing generation stay distinguishable
// from the current one.
func WithGeneration(logger zerolog.Logger, generation uint64) zerolog.Logger {
	return logger.With().Uint64("generation", generation).Logger()
}
