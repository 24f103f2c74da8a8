package env

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel reads the LOG_LEVEL environment variable and returns the
// corresponding slog.Level. Supported values: "debug", "info", "warn", "error".
// Falls back to the provided default if the variable is empty or unrecognised.
func ParseLogLevel(fallback slog.Level) slog.Level {
	switch strings.ToLower(Get("LOG_LEVEL", "")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// NewLogger builds the process logger. LOG_FORMAT=text selects the text
// handler; anything else logs JSON.
func NewLogger(w io.Writer, fallback slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(fallback)}
	if strings.EqualFold(Get("LOG_FORMAT", ""), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
