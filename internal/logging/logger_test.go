package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewJSONWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hub.log")
	logger, err := New(Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hub listening", String("socket", "/tmp/hub.sock"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", data, err)
	}
	if entry["msg"] != "hub listening" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["socket"] != "/tmp/hub.sock" {
		t.Fatalf("unexpected socket attr: %v", entry["socket"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestPrettyHandlerHoistsComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false, false))
	logger = NewComponentLogger(logger, "router")
	logger.Warn("bad command", String(FieldPeerSource, "cli"), String("cmd", "dance party"))

	line := buf.String()
	if !strings.Contains(line, "WARN router: bad command") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, `cmd="dance party"`) {
		t.Fatalf("expected quoted value, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not be repeated as attr: %q", line)
	}
}

func TestPrettyHandlerGroupsFlatten(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false, false))
	logger.WithGroup("state").Info("summary", Int("devices", 2))
	if !strings.Contains(buf.String(), "state.devices=2") {
		t.Fatalf("expected grouped key, got %q", buf.String())
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WarnWithContext(logger, "relay unavailable", "relay_unavailable", String(FieldImpact, "launch skipped"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[FieldEventType] != "relay_unavailable" {
		t.Fatalf("event type = %v", entry[FieldEventType])
	}
	if entry[FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
	if entry[FieldImpact] != "launch skipped" {
		t.Fatalf("impact should be preserved, got %v", entry[FieldImpact])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for input, want := range cases {
		got, ok := ParseLevel(input)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v,%v want %v", input, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatal("expected unknown level to be rejected")
	}
}
