// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a configuration value to a slog level. An empty value
// means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger writing to w. format "json" selects the JSON handler;
// anything else uses the text handler.
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init installs a logger built by New as the slog default and returns it.
func Init(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := New(w, format, lvl)
	slog.SetDefault(logger)
	return logger, nil
}

// WithMonitor returns a logger scoped to one monitor instance.
func WithMonitor(logger *slog.Logger, monitorID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("monitor_id", monitorID)
}

// WithSession scopes logger to one terminal session.
func WithSession(logger *slog.Logger, sessionID string, pid int) *slog.Logger {
	return logger.With("session_id", sessionID, "pid", pid)
}
