// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestParseLevel tests config string to Level conversion.
func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

// TestLevelString tests level names.
func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("LevelWarn.String() = %q", LevelWarn.String())
	}
	if Level(99).String() != "UNKNOWN" {
		t.Errorf("Level(99).String() = %q", Level(99).String())
	}
}

// TestFileLogging tests that entries land in the log file as JSON.
func TestFileLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "worker.log")

	logger, err := New(Config{
		Level:   LevelInfo,
		LogFile: logPath,
		Service: "stream-worker",
		Quiet:   true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("unit completed", "rule", "naming.md", "status", "allow")
	logger.Debug("should be filtered")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), string(data))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "unit completed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "stream-worker" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["rule"] != "naming.md" {
		t.Errorf("rule = %v", entry["rule"])
	}
}

// TestCloseIdempotent tests that Close can be called twice.
func TestCloseIdempotent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a.log")
	logger, err := New(Config{LogFile: logPath, Quiet: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

// TestWith tests that child loggers carry attributes.
func TestWith(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "b.log")
	logger, err := New(Config{LogFile: logPath, Quiet: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	child := logger.With("stream_id", "20250101-000000-abc123")
	child.Info("started")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "20250101-000000-abc123") {
		t.Errorf("child attribute missing from output: %q", string(data))
	}
}
