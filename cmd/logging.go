package cmd

import (
	"io"
	"log/slog"
	"strings"

	"github.com/marcus/till/internal/syncconfig"
	"gopkg.in/natefinch/lumberjack.v2"
)

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// newLogHandler builds the slog handler for lc, writing to w.
func newLogHandler(lc syncconfig.LogConfig, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel(lc.Level)}
	if strings.ToLower(lc.Format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// rotatingLog returns a size-rotated writer for the daemon's log file.
func rotatingLog(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}
