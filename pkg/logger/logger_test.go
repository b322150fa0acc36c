package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		" DEBUG ":  zerolog.DebugLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"":         zerolog.InfoLevel,
		"bogus":    zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf}).
		WithComponent("threat-scanner").
		WithPackage("com.example.app")

	log.Warn().Msg("metadata unavailable")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "threat-scanner" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["package"] != "com.example.app" {
		t.Errorf("package = %v", entry["package"])
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestConsoleOutputWithoutTerminalIsPlain(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: "info", Format: "console", Output: &buf}).
		WithScanID("scan-1").
		Info().Msg("refresh completed")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("console output to a buffer must not be colorized: %q", out)
	}
	if !strings.Contains(out, "refresh completed") || !strings.Contains(out, "scan_id=scan-1") {
		t.Errorf("unexpected console output: %q", out)
	}
}

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})
	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info leaked at warn level: %s", buf.String())
	}
	log.Error().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("error missing: %s", buf.String())
	}
}
