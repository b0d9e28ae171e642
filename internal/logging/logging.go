// Package logging builds the resident process's structured logger.
// Replaces the teacher's internal/debug file-logger idiom (a package-level
// mutex-guarded io.Writer, fprintf-style calls) with log/slog, selected by
// two environment variables: LOG_LEVEL (trace/debug/info/warn/error, per
// spec.md §6 — "trace" maps to slog's Debug level since slog has no
// lower level of its own) and VICAYA_LOG_FORMAT (text/json). No pack repo
// imports a third-party structured logger (logrus/zap/zerolog), so this is
// the stdlib successor to the teacher's idiom rather than a dropped
// dependency — see DESIGN.md.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a *slog.Logger from the given level and format strings,
// defaulting to info/text when either is empty or unrecognized.
func New(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// FromEnv builds a logger from LOG_LEVEL and VICAYA_LOG_FORMAT.
func FromEnv() *slog.Logger {
	return New(os.Getenv("LOG_LEVEL"), os.Getenv("VICAYA_LOG_FORMAT"))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
