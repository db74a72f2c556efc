package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger writing to stdout. format is "json"
// (the default) or "text" for local runs.
func NewLogger(level, format string) *slog.Logger {
	return New(os.Stdout, level, format)
}

func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func levelFromString(level string) slog.Leveler {
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
