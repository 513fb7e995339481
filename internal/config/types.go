package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Scheduler controls the trigger (cron) and the one-shot release timers.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of ticks and item releases.
	TaskEngine TaskEngineConfig `json:"task_engine"`

	Pacing  PacingConfig  `json:"pacing"`
	Backlog BacklogConfig `json:"backlog"`

	// Storage is the optional run ledger. Omit it to disable the ledger.
	Storage *StorageConfig `json:"storage,omitempty"`

	Lock    LockConfig    `json:"lock"`
	Metrics MetricsConfig `json:"metrics"`
	HTTP    HTTPConfig    `json:"http"`

	// Events exports bus events to NATS when set.
	Events *EventsConfig `json:"events,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the scheduler (trigger) service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Trigger timezone. Defaults to the pacing timezone.
	Timezone string `json:"timezone,omitempty"`

	// Spec is the cron expression of the pacing tick. Default: "0 * * * *".
	Spec string `json:"spec,omitempty"`

	// TickTimeout bounds one pacing invocation (Go duration string).
	TickTimeout string `json:"tick_timeout,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Enabled is a pointer so we can distinguish "omitted" (default to scheduler.enabled)
// from an explicit false.
//
// Defaults (when fields are omitted/zero):
//   - enabled: scheduler.enabled
//   - workers: 2
//   - queue_size: 256
//   - rate_per_sec: 0 (unlimited)
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
//   - retry_max: 3
type TaskEngineConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	Workers int   `json:"workers,omitempty"`

	QueueSize int `json:"queue_size,omitempty"`

	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`

	// MaxQueueDelay drops tasks that have been queued longer than this duration.
	MaxQueueDelay string `json:"max_queue_delay,omitempty"`

	HistorySize int  `json:"history_size,omitempty"`
	RetryMax    *int `json:"retry_max,omitempty"`

	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// PacingConfig shapes the daily release cycle. Zero values take the
// settlement defaults (05:00..23:00 hourly, midpoint 10, floor 50, waves of
// 11 over 300 seconds, America/New_York).
type PacingConfig struct {
	// Checkpoints lists HH:MM labels in cycle order.
	Checkpoints []string `json:"checkpoints,omitempty"`

	Midpoint int `json:"midpoint,omitempty"`
	LastStep int `json:"last_step,omitempty"`

	// Floor and WindowSeconds accept an explicit 0.
	Floor         *int `json:"floor,omitempty"`
	WaveSize      int  `json:"wave_size,omitempty"`
	WindowSeconds *int `json:"window_seconds,omitempty"`

	Timezone string `json:"timezone,omitempty"`

	// ReleaseTimeout bounds processing of one released item.
	ReleaseTimeout string `json:"release_timeout,omitempty"`
}

// BacklogConfig selects the pending transaction store.
//
// Example:
//
//	"backlog": { "driver": "postgres", "dsn": "host=db user=pay dbname=pay" }
type BacklogConfig struct {
	Driver          string `json:"driver"`
	DSN             string `json:"dsn"`
	MaxOpenConns    int    `json:"max_open_conns,omitempty"`
	MaxIdleConns    int    `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty"`
	SlowQuery       string `json:"slow_query,omitempty"`
	AutoMigrate     bool   `json:"auto_migrate,omitempty"`
}

// StorageConfig controls the run ledger.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/runs.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retain      int    `json:"retain,omitempty"`
}

// LockConfig guards each canonical hour against concurrent replicas.
// Driver is "none" (default) or "redis".
type LockConfig struct {
	Driver    string `json:"driver,omitempty"`
	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"` // never logged
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
	TTL       string `json:"ttl,omitempty"`
}

type MetricsConfig struct {
	Namespace string `json:"namespace,omitempty"`
}

// HTTPConfig controls the ops endpoint (/healthz, /metrics, /runs, /plan).
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`

	// Pprof exposes /debug/pprof/ on the same listener. A non-loopback addr
	// requires PprofToken.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}

type EventsConfig struct {
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
	Name          string `json:"name,omitempty"`
	ReconnectWait string `json:"reconnect_wait,omitempty"`
	Buffer        int    `json:"buffer,omitempty"`
}
