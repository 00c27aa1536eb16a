package infrastructure

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger on stdout and installs it as the default.
func NewLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
