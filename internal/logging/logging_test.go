package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRunID(WithComponent(New(&buf, "info", FormatJSON), "workflow"), "r-1")
	logger.Info("run started")
	logger.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v\n%s", err, buf.String())
	}
	if rec["component"] != "workflow" || rec["run_id"] != "r-1" || rec["msg"] != "run started" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "console").Debug("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "hello") || strings.HasPrefix(out, "{") {
		t.Errorf("console output = %q", out)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcdef0123456789"); got != "abcd...6789" {
		t.Errorf("SanitizeToken() = %q", got)
	}
}

func TestSanitizePath(t *testing.T) {
	t.Setenv("HOME", "/home/coach")
	if got := SanitizePath("/home/coach/videos/m.mp4"); got != "~/videos/m.mp4" {
		t.Errorf("SanitizePath() = %q", got)
	}
	if got := SanitizePath("/srv/m.mp4"); got != "/srv/m.mp4" {
		t.Errorf("SanitizePath() = %q", got)
	}
}
