// Package logging provides named, leveled component loggers on top of
// log/slog. Initialize once at startup; components then pull a logger with
// their own name attached.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu   sync.RWMutex
	root *slog.Logger
)

func init() {
	root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Initialize sets the process-wide minimum level. Accepted values are
// debug, info, warn, and error; anything else keeps info.
func Initialize(level string) {
	mu.Lock()
	defer mu.Unlock()
	root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// GetLogger returns a logger scoped to the named component.
func GetLogger(component string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With("component", component)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
