package logging

import (
	"log/slog"
	"os"
)

// NewLogger creates a structured logger for the given environment.
// Production logs JSON at Info level; anything else logs human-readable
// text at Debug level.
func NewLogger(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(env)}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func levelFor(env string) slog.Level {
	if env == "production" {
		return slog.LevelInfo
	}

	return slog.LevelDebug
}
