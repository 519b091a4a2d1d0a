package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sbsk/config"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sbsk.log")
	log, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Debug("hidden")
	log.Info("model loaded")
	// stderr may refuse fsync; the file core is what matters here
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"model loaded"`) {
		t.Fatalf("unexpected log contents: %s", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Fatalf("debug entry written at info level")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
