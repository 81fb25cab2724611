// Package log builds the process-wide structured logger.
//
// Output goes to stderr so server logs never interleave with the JSON that
// CLI subcommands print on stdout.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// New creates a text [slog.Logger] at the given level (debug, info, warn,
// error; case-insensitive).  An empty level falls back to
// HOSTLINK_LOG_LEVEL, then to info.  Debug level also enables source
// attribution on every record.
func New(level string) *slog.Logger {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv("HOSTLINK_LOG_LEVEL")
	}
	lvl := ParseLevel(level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}

// ParseLevel maps a level name to its slog level, defaulting to info for
// anything unrecognized.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
