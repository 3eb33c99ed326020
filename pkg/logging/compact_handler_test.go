package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestCompactHandlerComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.With("component", "finder").Info("collected files", "count", 3, "root", "/tmp/my project")

	line := buf.String()
	if !strings.HasPrefix(line, "[INFO]  ") {
		t.Errorf("expected INFO prefix, got %q", line)
	}
	if !strings.Contains(line, "[finder] collected files |") {
		t.Errorf("expected component prefix before message, got %q", line)
	}
	if !strings.Contains(line, "count=3") {
		t.Errorf("expected count attribute, got %q", line)
	}
	if !strings.Contains(line, `root="/tmp/my project"`) {
		t.Errorf("expected quoted root attribute, got %q", line)
	}
}

func TestCompactHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "[WARN]  ") {
		t.Errorf("expected warn line, got %q", buf.String())
	}
}

func TestLevelForVerbosity(t *testing.T) {
	tests := []struct {
		count int
		want  slog.Level
	}{
		{0, slog.LevelInfo},
		{1, slog.LevelDebug},
		{2, LevelTrace},
		{5, LevelTrace},
	}

	for _, tt := range tests {
		if got := LevelForVerbosity(tt.count); got != tt.want {
			t.Errorf("LevelForVerbosity(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if level, ok := ParseLevel("trace"); !ok || level != LevelTrace {
		t.Errorf("ParseLevel(trace) = %v, %v", level, ok)
	}
	if level, ok := ParseLevel("warn"); !ok || level != slog.LevelWarn {
		t.Errorf("ParseLevel(warn) = %v, %v", level, ok)
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("ParseLevel(loud) should fail")
	}
}

func TestSetJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	SetJSONOutput(&buf, slog.LevelInfo)
	defer SetOutput(os.Stderr, slog.LevelInfo)

	New("runner").Info("analysis complete", "files", 3)
	Debug("hidden")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "analysis complete" || entry["component"] != "runner" {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["files"] != float64(3) {
		t.Errorf("expected files=3, got %v", entry["files"])
	}
}
