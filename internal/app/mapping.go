package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"paypacer/internal/backlog"
	"paypacer/internal/config"
	"paypacer/internal/eventbus"
	"paypacer/internal/httpapi"
	"paypacer/internal/lock"
	"paypacer/internal/pacing"
	"paypacer/internal/storage"
	"paypacer/internal/task/engine"
	logx "paypacer/pkg/logx"
)

const (
	defaultTickTimeout    = 2 * time.Minute
	defaultReleaseTimeout = 30 * time.Second
	defaultLockTTL        = 50 * time.Minute
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	if cfg.Scheduler.Enabled && te.Enabled != nil && !*te.Enabled {
		return engine.Config{}, errors.New("task_engine.enabled cannot be false while scheduler.enabled is true")
	}
	retryMax := 3
	if te.RetryMax != nil {
		retryMax = *te.RetryMax
	}

	defTimeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxQueueDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	retryBase, err := config.ParseDurationField("task_engine.retry_base", te.RetryBase)
	if err != nil {
		return engine.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("task_engine.retry_max_delay", te.RetryMaxDelay)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		Enabled:        cfg.EngineEnabled(),
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		RatePerSec:     te.RatePerSec,
		Burst:          te.Burst,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxQueueDelay,
		HistorySize:    te.HistorySize,
		RetryMax:       retryMax,
		RetryBase:      retryBase,
		RetryMaxDelay:  retryMaxDelay,
	}, nil
}

// mapPacingConfig overlays the pacing section on the settlement defaults and
// validates the result.
func mapPacingConfig(cfg *config.Config) (pacing.Config, error) {
	pc := cfg.Pacing
	out := pacing.DefaultConfig()

	if len(pc.Checkpoints) > 0 {
		table, err := pacing.NewCycleTable(pc.Checkpoints...)
		if err != nil {
			return pacing.Config{}, fmt.Errorf("pacing.checkpoints: %w", err)
		}
		out.Table = table
		out.LastStep = table.LastStep()
		if out.Midpoint > out.LastStep {
			out.Midpoint = (out.LastStep + 1) / 2
		}
	}
	if pc.LastStep > 0 {
		out.LastStep = pacing.Step(pc.LastStep)
	}
	if pc.Midpoint > 0 {
		out.Midpoint = pacing.Step(pc.Midpoint)
	}
	if pc.Floor != nil {
		out.Floor = *pc.Floor
	}
	if pc.WaveSize > 0 {
		out.WaveSize = pc.WaveSize
	}
	if pc.WindowSeconds != nil {
		out.WindowSeconds = *pc.WindowSeconds
	}
	if tz := strings.TrimSpace(pc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return pacing.Config{}, fmt.Errorf("pacing.timezone: %w", err)
		}
		out.Zone = loc
	}
	if err := out.Validate(); err != nil {
		return pacing.Config{}, err
	}
	return out, nil
}

func mapBacklogConfig(cfg *config.Config) (backlog.Config, error) {
	bc := cfg.Backlog
	life, err := config.ParseDurationField("backlog.conn_max_lifetime", bc.ConnMaxLifetime)
	if err != nil {
		return backlog.Config{}, err
	}
	slow, err := config.ParseDurationOrDefault("backlog.slow_query", bc.SlowQuery, 200*time.Millisecond)
	if err != nil {
		return backlog.Config{}, err
	}
	return backlog.Config{
		Driver:          strings.ToLower(strings.TrimSpace(bc.Driver)),
		DSN:             bc.DSN,
		MaxOpenConns:    bc.MaxOpenConns,
		MaxIdleConns:    bc.MaxIdleConns,
		ConnMaxLifetime: life,
		SlowQuery:       slow,
		AutoMigrate:     bc.AutoMigrate,
	}, nil
}

// mapStorageConfig returns enabled=false when the ledger is not configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	retain := sc.Retain
	if retain == 0 {
		retain = 24 * 90
	}

	switch driver {
	case "file":
		return storage.Config{Driver: driver, Path: path, Retain: retain}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, errors.New("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Retain: retain}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

type lockSettings struct {
	redis bool
	cfg   lock.RedisConfig
	ttl   time.Duration
}

func mapLockConfig(cfg *config.Config) (lockSettings, error) {
	lc := cfg.Lock
	ttl, err := config.ParseDurationOrDefault("lock.ttl", lc.TTL, defaultLockTTL)
	if err != nil {
		return lockSettings{}, err
	}
	out := lockSettings{ttl: ttl}
	switch strings.ToLower(strings.TrimSpace(lc.Driver)) {
	case "", "none":
	case "redis":
		out.redis = true
		out.cfg = lock.RedisConfig{Addr: lc.Addr, Password: lc.Password, DB: lc.DB, KeyPrefix: lc.KeyPrefix}
	default:
		return lockSettings{}, fmt.Errorf("unknown lock.driver: %s", lc.Driver)
	}
	return out, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	read, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	out := httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		Pprof:        cfg.HTTP.Pprof,
		PprofToken:   cfg.HTTP.PprofToken,
	}
	if out.Pprof && strings.TrimSpace(out.PprofToken) == "" && strings.TrimSpace(out.Addr) != "" && !httpapi.IsLoopbackAddr(out.Addr) {
		return httpapi.Config{}, fmt.Errorf("http.pprof on non-loopback addr %s requires http.pprof_token", out.Addr)
	}
	return out, nil
}

func mapEventsConfig(cfg *config.Config) (eventbus.NATSConfig, bool, error) {
	ec := cfg.Events
	if ec == nil || strings.TrimSpace(ec.URL) == "" {
		return eventbus.NATSConfig{}, false, nil
	}
	wait, err := config.ParseDurationField("events.reconnect_wait", ec.ReconnectWait)
	if err != nil {
		return eventbus.NATSConfig{}, false, err
	}
	return eventbus.NATSConfig{
		URL:           ec.URL,
		SubjectPrefix: ec.SubjectPrefix,
		Name:          ec.Name,
		ReconnectWait: wait,
		Buffer:        ec.Buffer,
	}, true, nil
}

// validateAll maps every section so a reload is rejected on the same errors
// startup would fail on.
func validateAll(cfg *config.Config) error {
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPacingConfig(cfg); err != nil {
		return err
	}
	if _, err := mapBacklogConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapLockConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	_, _, err := mapEventsConfig(cfg)
	return err
}
