package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  spec: "0 * * * *"
task_engine:
  workers: 4
  rate_per_sec: 20
  retry_max: 0
pacing:
  floor: 0
  timezone: America/New_York
backlog:
  driver: postgres
  dsn: host=db user=pay
lock:
  driver: redis
  addr: 127.0.0.1:6379
  ttl: 50m
`

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("paypacer.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.TaskEngine.Workers != 4 || cfg.TaskEngine.RatePerSec != 20 {
		t.Fatalf("task_engine = %+v", cfg.TaskEngine)
	}
	if cfg.TaskEngine.RetryMax == nil || *cfg.TaskEngine.RetryMax != 0 {
		t.Fatalf("explicit retry_max 0 lost")
	}
	if cfg.Pacing.Floor == nil || *cfg.Pacing.Floor != 0 {
		t.Fatalf("explicit floor 0 lost")
	}
	if cfg.Backlog.Driver != "postgres" || cfg.Lock.TTL != "50m" {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !cfg.EngineEnabled() {
		t.Fatalf("engine should default to scheduler.enabled")
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	if _, err := Decode("c.json", []byte(`{"webhook":{}}`)); err == nil {
		t.Fatalf("unknown field accepted")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatalf("trailing data accepted")
	}
	if _, err := Decode("c.yml", []byte("pacing:\n  wave_siz: 3\n")); err == nil {
		t.Fatalf("unknown yaml field accepted")
	}
	cfg, err := Decode("empty.yaml", nil)
	if err != nil || cfg == nil {
		t.Fatalf("empty yaml: %v", err)
	}
}

func TestValidate(t *testing.T) {
	neg := -1
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"bad spec", Config{Scheduler: SchedulerConfig{Spec: "every hour"}}, "scheduler.spec"},
		{"bad zone", Config{Pacing: PacingConfig{Timezone: "Mars/Olympus"}}, "pacing.timezone"},
		{"bad duration", Config{TaskEngine: TaskEngineConfig{DefaultTimeout: "10 sec"}}, "task_engine.default_timeout"},
		{"negative floor", Config{Pacing: PacingConfig{Floor: &neg}}, "pacing.floor"},
		{"bad backlog driver", Config{Backlog: BacklogConfig{Driver: "mongo"}}, "backlog.driver"},
		{"redis without addr", Config{Lock: LockConfig{Driver: "redis"}}, "lock.addr"},
		{"events without url", Config{Events: &EventsConfig{}}, "events.url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate err = %v, want mention of %s", err, tc.want)
			}
		})
	}
	if err := (&Config{}).Validate(); err != nil {
		t.Fatalf("zero config should validate: %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: %s %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "5s", time.Minute); err != nil || d != 5*time.Second {
		t.Fatalf("explicit: %s %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative accepted")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	old := &Config{Logging: LoggingConfig{Level: "info"}, Lock: LockConfig{Password: "a"}}
	next := &Config{Logging: LoggingConfig{Level: "debug"}, Lock: LockConfig{Password: "b"}}
	changed, _ := SummarizeConfigChange(old, next)
	if strings.Join(changed, ",") != "lock,logging" {
		t.Fatalf("changed = %v", changed)
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "lock" {
		t.Fatalf("restart required = %v", got)
	}
}

func TestManagerLoadAndWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paypacer.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and the running config kept.
	if err := os.WriteFile(path, []byte(`{"lock":{"driver":"etcd"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if m.Get().Logging.Level != "info" {
		t.Fatalf("invalid reload was committed")
	}

	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-updates:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no reload published")
	}
}
