package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON structured logger writing to stdout.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level(),
	}))
}

func level() slog.Level {
	switch os.Getenv("REGCAST_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
