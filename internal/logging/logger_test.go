package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/harsh-dexter/notera/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	logger, closer := New(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	if closer == nil {
		t.Fatal("Expected a closer for file output")
	}

	logger.Debug().Msg("hidden")
	logger.Info().Str("session_id", "abc123").Msg("Recording started")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %s", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if entry["session_id"] != "abc123" || entry["message"] != "Recording started" {
		t.Errorf("Unexpected log entry: %v", entry)
	}
}

func TestWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := WithCorrelationID(zerolog.New(&buf), "")
	logger.Info().Msg("x")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	id, _ := entry["correlation_id"].(string)
	if len(id) != 36 {
		t.Errorf("Expected generated uuid correlation_id, got %q", id)
	}
}
