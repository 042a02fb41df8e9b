package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "startpage.log")

	logger, level, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", File: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "key", "value")

	level.Set(slog.LevelDebug)
	logger.Debug("after reload")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)

	if strings.Contains(out, "dropped") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("warn record missing: %s", out)
	}
	if !strings.Contains(out, "after reload") {
		t.Errorf("level change not applied: %s", out)
	}
}
