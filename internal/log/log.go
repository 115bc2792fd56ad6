// Package log sets up the process-wide slog logger from configuration.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.Mutex
	global *slog.Logger
)

// Init installs a stderr logger as the slog default. Later calls replace
// it, so a reloaded config can change the level.
func Init(level, format string) *slog.Logger {
	l := New(os.Stderr, level, format)
	mu.Lock()
	global = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// New builds a logger on w. format is "json" or "text"; GO_ENV=production
// forces json.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") || os.Getenv("GO_ENV") == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel accepts debug, info, warn(ing) and error in any case.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// L returns the logger installed by Init, or slog's default before that.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		return slog.Default()
	}
	return global
}

// Component tags L with a component name, matching the "pkg.type"
// convention the packages use for their own loggers.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
