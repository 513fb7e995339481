package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriterLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "pacing"))

	log.Info("tick planned", Int("size", 50), Duration("span", 300*time.Second), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["message"] != "tick planned" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["comp"] != "pacing" {
		t.Fatalf("comp = %v", m["comp"])
	}
	if m["size"] != float64(50) {
		t.Fatalf("size = %v", m["size"])
	}
	if _, ok := m["caller"]; !ok {
		t.Fatalf("expected caller field in %v", m)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatalf("debug should not be enabled at warn level")
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	log.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatalf("Nop logger is not the zero value")
	}
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paypacer.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Debug("dropped")
	log.Info("kept")

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("now kept")
	_ = svc.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug line written before level change: %q", out)
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, "now kept") {
		t.Fatalf("missing expected lines: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		" warn ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "info").With(Component("lock")).Info("acquired")
	if !strings.Contains(buf.String(), `"comp":"lock"`) {
		t.Fatalf("component missing: %q", buf.String())
	}
}

func TestApplyWithoutFileClosesIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "paypacer.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("first")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not created in missing dir: %v", err)
	}

	svc.Apply(Config{Level: "info"})
	if svc.file != nil {
		t.Fatalf("file sink should be closed once disabled")
	}
	if got := svc.Config(); got.File.Enabled {
		t.Fatalf("Config() = %+v", got)
	}
}
