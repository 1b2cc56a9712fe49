package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "json")

	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["level"] != "warn" || entry["service"] != "salesms" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewWithWriterDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "chatty", "")

	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
	logger.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected info to be written")
	}
}
