// Package logging is the thin slog wrapper every component receives at
// construction. Records go to stdout as JSON lines so the platform's log
// shipper can parse them without per-service configuration.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger embeds slog.Logger; components attach their own context with With.
type Logger struct {
	*slog.Logger
}

// New builds a JSON logger at the given level. An unknown or empty level
// falls back to info, so a typo in LOG_LEVEL never silences the service.
func New(level string) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default is the logger used when a component is constructed without one.
func Default() *Logger {
	return New("info")
}

// With returns a logger that carries the given attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
