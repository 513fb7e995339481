package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTickSpec fires at the top of every hour.
const DefaultTickSpec = "0 * * * *"

var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks field syntax: durations, drivers, zones and the tick spec.
// Cross-field pacing rules are checked when the pacing config is built.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	zone := func(path, raw string) {
		if tz := strings.TrimSpace(raw); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
		}
	}
	oneOf := func(path, raw string, allowed ...string) {
		v := strings.ToLower(strings.TrimSpace(raw))
		if v == "" {
			return
		}
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", path, raw, strings.Join(allowed, ", ")))
	}

	zone("scheduler.timezone", c.Scheduler.Timezone)
	if spec := strings.TrimSpace(c.Scheduler.Spec); spec != "" {
		if _, err := specParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.spec: %w", err))
		}
	}
	dur("scheduler.tick_timeout", c.Scheduler.TickTimeout)

	te := c.TaskEngine
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 || te.Burst < 0 {
		errs = append(errs, errors.New("task_engine: sizes must be >= 0"))
	}
	if te.RatePerSec < 0 {
		errs = append(errs, errors.New("task_engine.rate_per_sec must be >= 0"))
	}
	if te.RetryMax != nil && *te.RetryMax < 0 {
		errs = append(errs, errors.New("task_engine.retry_max must be >= 0"))
	}
	dur("task_engine.default_timeout", te.DefaultTimeout)
	dur("task_engine.max_queue_delay", te.MaxQueueDelay)
	dur("task_engine.retry_base", te.RetryBase)
	dur("task_engine.retry_max_delay", te.RetryMaxDelay)

	zone("pacing.timezone", c.Pacing.Timezone)
	dur("pacing.release_timeout", c.Pacing.ReleaseTimeout)
	if c.Pacing.Floor != nil && *c.Pacing.Floor < 0 {
		errs = append(errs, errors.New("pacing.floor must be >= 0"))
	}
	if c.Pacing.WindowSeconds != nil && *c.Pacing.WindowSeconds < 0 {
		errs = append(errs, errors.New("pacing.window_seconds must be >= 0"))
	}

	oneOf("backlog.driver", c.Backlog.Driver, "sqlite", "postgres", "mysql", "memory")
	dur("backlog.conn_max_lifetime", c.Backlog.ConnMaxLifetime)
	dur("backlog.slow_query", c.Backlog.SlowQuery)

	if c.Storage != nil {
		oneOf("storage.driver", c.Storage.Driver, "none", "file", "sqlite")
		dur("storage.busy_timeout", c.Storage.BusyTimeout)
		if c.Storage.Retain < 0 {
			errs = append(errs, errors.New("storage.retain must be >= 0"))
		}
	}

	oneOf("lock.driver", c.Lock.Driver, "none", "redis")
	dur("lock.ttl", c.Lock.TTL)
	if strings.EqualFold(strings.TrimSpace(c.Lock.Driver), "redis") && strings.TrimSpace(c.Lock.Addr) == "" {
		errs = append(errs, errors.New("lock.addr is required for the redis driver"))
	}

	dur("http.read_timeout", c.HTTP.ReadTimeout)
	dur("http.write_timeout", c.HTTP.WriteTimeout)

	if c.Events != nil {
		if strings.TrimSpace(c.Events.URL) == "" {
			errs = append(errs, errors.New("events.url is required when events is set"))
		}
		dur("events.reconnect_wait", c.Events.ReconnectWait)
	}

	return errors.Join(errs...)
}

// EngineEnabled resolves task_engine.enabled, defaulting to scheduler.enabled.
func (c *Config) EngineEnabled() bool {
	if c.TaskEngine.Enabled != nil {
		return *c.TaskEngine.Enabled
	}
	return c.Scheduler.Enabled
}

// TickSpec returns the configured tick spec or DefaultTickSpec.
func (c *Config) TickSpec() string {
	if s := strings.TrimSpace(c.Scheduler.Spec); s != "" {
		return s
	}
	return DefaultTickSpec
}
