package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestNewLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: slog.LevelInfo, Output: &buf, JSONFormat: true}, NewRedactor())

	logger.Info("generation complete", "provider", "gemini", "latency_ms", 200)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "generation complete" {
		t.Errorf("msg = %v, want generation complete", entry["msg"])
	}
	if entry["provider"] != "gemini" {
		t.Errorf("provider = %v, want gemini", entry["provider"])
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: slog.LevelWarn, Output: &buf, JSONFormat: true}, NewRedactor())

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("info entry emitted despite warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn entry missing")
	}
}

func TestLogger_RedactedInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: slog.LevelInfo, Output: &buf, JSONFormat: true}, NewRedactor())

	logger.RedactedInfo("upstream rejected key AIzaSyB1234567890abcdefghijklmnopqrstuvw",
		"url", "https://example.test?key=AIzaSyB1234567890abcdefghijklmnopqrstuvw")

	out := buf.String()
	if strings.Contains(out, "AIza") {
		t.Errorf("log output still contains key material: %s", out)
	}
	if !strings.Contains(out, "[REDACTED_GOOGLE_KEY]") {
		t.Errorf("log output missing redaction marker: %s", out)
	}
}

func TestLogger_WithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: slog.LevelInfo, Output: &buf, JSONFormat: true}, NewRedactor())

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	logger.WithRequestID(ctx).Info("handling")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["request_id"] != "req-abc" {
		t.Errorf("request_id = %v, want req-abc", entry["request_id"])
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: slog.LevelInfo, Output: &buf, JSONFormat: true}, NewRedactor())

	logger.WithFields("component", "broker").Info("started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["component"] != "broker" {
		t.Errorf("component = %v, want broker", entry["component"])
	}
}
