package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DebugEnv enables debug logging when set to "1".
const DebugEnv = "SITEPATCH_DEBUG"

// Enabled reports whether debug logging was requested by flag or environment.
func Enabled(flag bool) bool {
	return flag || os.Getenv(DebugEnv) == "1"
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New returns a JSON logger writing to a timestamped file under logsDir, or a
// discarding logger when debug logging is off. The returned close function is
// never nil.
func New(logsDir string, debug bool) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }
	if !Enabled(debug) {
		return Discard(), noop, nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return Discard(), noop, fmt.Errorf("create logs dir %s: %w", logsDir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logsDir, fmt.Sprintf("sitepatch-%s.log", timestamp))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return Discard(), noop, fmt.Errorf("open log file %s: %w", logPath, err)
	}

	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Debug("debug logging enabled", "path", logPath, "pid", os.Getpid())
	return logger, file.Close, nil
}

// Stdout returns the JSON logger used by the HTTP server.
func Stdout(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if Enabled(debug) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
