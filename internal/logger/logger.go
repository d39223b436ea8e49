// Package logger provides the backend's structured JSON logging: a
// system-wide slog.Logger writing to a rotated log file, and per-session
// child loggers tagged with session_id so one conversation's turns can be
// filtered out of the system stream for auditing.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewSystemLogger creates a JSON slog.Logger that writes to <logDir>/system.log,
// rotated by lumberjack once it exceeds 50MB (keeping 5 backups for 30 days).
// The directory is created if it does not exist.
func NewSystemLogger(logDir string, level slog.Level) (*slog.Logger, error) {
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, fmt.Errorf("creating log directory %q: %w", logDir, err)
	}

	w := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "system.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

// Session derives a per-session child of base tagged with session_id.
// Session IDs are opaque, client-supplied strings, so per-session tracing
// shares the system log stream rather than opening attacker-named files.
func Session(base *slog.Logger, sessionID string) *slog.Logger {
	return base.With("session_id", sessionID)
}
