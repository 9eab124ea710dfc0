// Package log sets up the process-wide slog logger and hands out
// component loggers.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init installs the global logger at the given level ("debug", "info",
// "warn", "error"). Only the first call has an effect.
// GO_ENV=production switches the output to JSON.
func Init(level string) {
	once.Do(func() {
		logger = New(os.Stdout, ParseLevel(level), os.Getenv("GO_ENV") == "production")
		slog.SetDefault(logger)
	})
}

// New builds a logger writing to w.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
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

// L returns the global logger, initializing it at info if needed.
func L() *slog.Logger {
	Init(DefaultLevel)
	return logger
}

// DefaultLevel is used when nothing called Init first.
const DefaultLevel = "info"

// Info logs on the global logger.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Error logs on the global logger.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// Component returns l tagged with a component name.
// A nil l falls back to the global logger.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = L()
	}
	return l.With("component", name)
}
