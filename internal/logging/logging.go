// Package logging builds the structured loggers used by the binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level parses a level name. Unknown names fall back to info.
func Level(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w in the given format ("text" or "json", default text), tagged
// with the service name and process id.
func New(w io.Writer, service, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     Level(level),
		AddSource: strings.EqualFold(level, "debug"),
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		"service", service,
		"pid", os.Getpid(),
	)
}
