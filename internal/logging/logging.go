package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a JSON logger on stdout, or a colourised console logger on
// stderr when format is "text".
func New(level, format string) *slog.Logger {
	return slog.New(NewHandler(os.Stdout, os.Stderr, level, format))
}

func NewHandler(stdout, stderr io.Writer, level, format string) slog.Handler {
	lvl := ParseLevel(level)
	if strings.EqualFold(format, "text") {
		return tint.NewHandler(stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.NewJSONHandler(stdout, &slog.HandlerOptions{Level: lvl})
}

// ParseLevel maps debug, info, warn and error; anything else is info.
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
