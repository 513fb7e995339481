package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"paypacer/internal/storage"
	logx "paypacer/pkg/logx"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("paypacer %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func writeConfig(t *testing.T, ledger string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `logging:
  level: error
scheduler:
  enabled: false
backlog:
  driver: memory
storage:
  driver: file
  path: ` + ledger + `
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseAt(t *testing.T) {
	at, err := parseAt("2017-11-08T15:00:00-05:00")
	if err != nil {
		t.Fatalf("parseAt: %v", err)
	}
	if want := time.Date(2017, 11, 8, 20, 0, 0, 0, time.UTC); !at.Equal(want) {
		t.Fatalf("parseAt = %s, want %s", at, want)
	}
	if _, err := parseAt("3pm"); err == nil {
		t.Fatalf("expected error for non-RFC3339 input")
	}
	if at, err := parseAt(""); err != nil || at.IsZero() {
		t.Fatalf("empty --at should mean now, got %s %v", at, err)
	}
}

func TestRunsCommandPrintsLedger(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "runs.jsonl")
	st, err := storage.Open(storage.Config{Driver: "file", Path: ledger}, logx.Nop())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	at := time.Date(2017, 11, 8, 20, 0, 0, 0, time.UTC)
	recs := []storage.RunRecord{
		{At: at, Label: "15:00", Step: 10, InCycle: true, SubCycle: "late", Backlog: 120, Size: 50, Dispatched: 50, Waves: 5},
		{At: at.Add(time.Hour), Label: "16:00", Step: 11, InCycle: true, SubCycle: "late", Error: "count backlog: boom"},
	}
	for _, r := range recs {
		if err := st.AppendRun(context.Background(), r); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	_ = st.Close()

	out := execute(t, "runs", "--config", writeConfig(t, ledger), "--limit", "5")
	if !strings.Contains(out, "15:00") || !strings.Contains(out, "error: count backlog: boom") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Index(out, "16:00") > strings.Index(out, "15:00") {
		t.Fatalf("runs should be newest first:\n%s", out)
	}
}

func TestPlanCommandPreviewsHour(t *testing.T) {
	cfg := writeConfig(t, filepath.Join(t.TempDir(), "runs.jsonl"))
	out := execute(t, "plan", "--config", cfg, "--at", "2017-11-08T15:00:00-05:00", "--hours", "2")
	if !strings.Contains(out, "15:00  step 10") || !strings.Contains(out, "16:00  step 11") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "backlog 0") {
		t.Fatalf("memory backlog should be empty:\n%s", out)
	}
}

func TestPlanCommandFollowsSchedule(t *testing.T) {
	cfg := writeConfig(t, filepath.Join(t.TempDir(), "runs.jsonl"))
	t.Cleanup(func() { planFollow = false })
	// The first fire after 14:30 is 15:00, not the --at hour itself.
	out := execute(t, "plan", "--config", cfg, "--at", "2017-11-08T14:30:00-05:00", "--hours", "2", "--schedule")
	if !strings.Contains(out, "15:00  step 10") || !strings.Contains(out, "16:00  step 11") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "14:00") {
		t.Fatalf("preview should start at the next tick:\n%s", out)
	}
}
