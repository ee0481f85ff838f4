// Package logging builds the zerolog logger shared by every command.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w. format "json" emits one JSON object per
// line; anything else uses the human-readable console writer. Unknown levels
// fall back to info.
func New(level, format string, w io.Writer) zerolog.Logger {
	out := w
	if !strings.EqualFold(format, "json") {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", "dwh").
		Logger().
		Level(ParseLevel(level))
}

// ParseLevel maps a config level name onto zerolog, defaulting to info.
func ParseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
