package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDisabled(t *testing.T) {
	t.Setenv(DebugEnv, "")
	dir := filepath.Join(t.TempDir(), "logs")

	logger, closeFn, err := New(dir, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("logs dir created while disabled: %v", err)
	}
}

func TestNewWritesJSON(t *testing.T) {
	t.Setenv(DebugEnv, "1")
	dir := filepath.Join(t.TempDir(), "logs")

	logger, closeFn, err := New(dir, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("turn complete", "files", 2)
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("log files = %v, %v", entries, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"turn complete"`) || !strings.Contains(string(data), `"files":2`) {
		t.Errorf("log = %s", data)
	}
}
