// Package app wires the pacing service together: config, stores, the task
// engine and scheduler, the dispatcher and the ops surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paypacer/internal/backlog"
	"paypacer/internal/config"
	"paypacer/internal/eventbus"
	"paypacer/internal/httpapi"
	"paypacer/internal/lock"
	"paypacer/internal/metrics"
	"paypacer/internal/pacing"
	"paypacer/internal/processor"
	"paypacer/internal/runtime/supervisor"
	"paypacer/internal/storage"
	"paypacer/internal/task/engine"
	"paypacer/internal/task/scheduler"
	logx "paypacer/pkg/logx"
)

const (
	tickTaskName    = "pacing.tick"
	releaseTaskName = "settle"
	lockRetryDelay  = 10 * time.Second
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	backlog backlog.Store
	runs    storage.Store
	locker  lock.Locker
	lockTTL time.Duration

	engine *engine.Service
	sched  *scheduler.Service
	disp   *pacing.Dispatcher
	proc   *processor.Processor
	met    *metrics.Metrics
	http   *httpapi.Server

	natsCfg     eventbus.NATSConfig
	natsEnabled bool

	tickTimeout time.Duration
	now         func() time.Time
}

// Option overrides a collaborator built from config.
type Option func(*options)

type options struct {
	backlog backlog.Store
	locker  lock.Locker
	runs    storage.Store
	now     func() time.Time
}

func WithBacklog(st backlog.Store) Option { return func(o *options) { o.backlog = st } }

func WithLocker(l lock.Locker) Option { return func(o *options) { o.locker = l } }

func WithRunStore(st storage.Store) Option { return func(o *options) { o.runs = st } }

// WithClock replaces time.Now for cron-driven ticks and /plan defaults.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Load reads cfgPath and builds the app. The returned app watches the file
// once started.
func Load(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	a, err := New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.cfgm = cfgm
	return a, nil
}

// New builds every component from cfg without starting anything.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	logSvc, log := logx.New(mapLogging(cfg))
	a := &App{
		cfg:  cfg,
		logs: logSvc,
		log:  log.With(logx.Component("app")),
		bus:  eventbus.New(),
		now:  o.now,
	}
	ok := false
	defer func() {
		if !ok {
			a.closeStores()
		}
	}()

	pcfg, err := mapPacingConfig(cfg)
	if err != nil {
		return nil, err
	}
	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.tickTimeout, err = config.ParseDurationOrDefault("scheduler.tick_timeout", cfg.Scheduler.TickTimeout, defaultTickTimeout)
	if err != nil {
		return nil, err
	}
	releaseTimeout, err := config.ParseDurationOrDefault("pacing.release_timeout", cfg.Pacing.ReleaseTimeout, defaultReleaseTimeout)
	if err != nil {
		return nil, err
	}

	// Backlog
	if o.backlog != nil {
		a.backlog = o.backlog
	} else {
		bcfg, err := mapBacklogConfig(cfg)
		if err != nil {
			return nil, err
		}
		st, err := backlog.Open(ctx, bcfg, log.With(logx.Component("backlog")))
		if err != nil {
			return nil, err
		}
		a.backlog = st
		a.log.Info("backlog opened", logx.String("driver", bcfg.Driver))
	}

	// Run ledger (optional)
	if o.runs != nil {
		a.runs = o.runs
	} else if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.Component("storage")))
		if err != nil {
			return nil, err
		}
		a.runs = st
		a.log.Info("run ledger enabled", logx.String("driver", sc.Driver))
	}

	// Hour lock
	ls, err := mapLockConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.lockTTL = ls.ttl
	switch {
	case o.locker != nil:
		a.locker = o.locker
	case ls.redis:
		rl, err := lock.DialRedis(ctx, ls.cfg, log.With(logx.Component("lock")))
		if err != nil {
			return nil, err
		}
		a.locker = rl
	default:
		a.locker = lock.Noop{}
	}

	// Execution
	a.engine = engine.New(engCfg, log.With(logx.Component("taskengine")), a.bus)
	a.sched = scheduler.New(scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: schedulerZone(cfg, pcfg),
	}, a.engine, log.With(logx.Component("scheduler")))

	a.proc = processor.New(a.backlog, log.With(logx.Component("processor")))
	sink := scheduler.NewSink(a.sched, releaseTaskName, releaseTimeout, a.proc.Settle)
	a.disp, err = pacing.NewDispatcher(pcfg, a.backlog, sink, log.With(logx.Component("pacing")))
	if err != nil {
		return nil, err
	}

	a.met = metrics.New(cfg.Metrics.Namespace)

	if cfg.HTTP.Enabled {
		hcfg, err := mapHTTPConfig(cfg)
		if err != nil {
			return nil, err
		}
		deps := httpapi.Deps{
			Planner: a,
			Metrics: a.met.Handler(),
			Health:  a.health,
			Now:     a.now,
		}
		if a.runs != nil {
			deps.Runs = a.runs
		}
		a.http = httpapi.New(hcfg, deps, log.With(logx.Component("http")))
	}

	a.natsCfg, a.natsEnabled, err = mapEventsConfig(cfg)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// schedulerZone defaults the trigger zone to the pacing zone so cron hours
// line up with checkpoints.
func schedulerZone(cfg *config.Config, pcfg pacing.Config) string {
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		return tz
	}
	return pcfg.Zone.String()
}

func (a *App) Logger() logx.Logger           { return a.log }
func (a *App) Backlog() backlog.Store        { return a.backlog }
func (a *App) Runs() storage.Store           { return a.runs }
func (a *App) Metrics() *metrics.Metrics     { return a.met }
func (a *App) Bus() eventbus.Bus             { return a.bus }
func (a *App) PacingConfig() pacing.Config   { return a.disp.Config() }
func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Engine() *engine.Service       { return a.engine }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// StartWorkers starts the engine and the release timers without the cron
// trigger or any listener. Start calls it; one-off commands use it alone.
func (a *App) StartWorkers(ctx context.Context) error {
	if a.sup != nil {
		return nil
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	if !a.engine.Enabled() {
		return errors.New("task engine is disabled; nothing would process released items")
	}
	a.engine.Start(a.sup.Context())
	a.sup.Go("metrics.events", func(c context.Context) error {
		if err := a.met.Run(c, a.bus); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	a.sup.Go("metrics.pending", a.samplePending)
	return nil
}

// Start runs the full service: workers, the cron tick, the ops endpoint, the
// NATS export and config hot reload.
func (a *App) Start(ctx context.Context) error {
	if err := a.StartWorkers(ctx); err != nil {
		return err
	}
	c := a.sup.Context()

	if a.natsEnabled {
		br, err := eventbus.DialNATS(a.natsCfg, a.log.With(logx.Component("nats")))
		if err != nil {
			return err
		}
		a.sup.GoRestart("events.nats", func(c context.Context) error {
			return br.Run(c, a.bus)
		})
		a.sup.Go("events.nats.close", func(c context.Context) error {
			<-c.Done()
			br.Close()
			return nil
		})
	}

	if a.sched.Enabled() {
		spec := a.cfg.TickSpec()
		opt := engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning}
		if err := a.sched.AddCronOpt(tickTaskName, spec, a.tickTimeout, opt, a.runTick); err != nil {
			return fmt.Errorf("register tick %q: %w", spec, err)
		}
		if err := a.sched.Start(c); err != nil {
			return err
		}
	} else {
		a.log.Warn("scheduler disabled; ticks run only on demand")
	}

	if a.http != nil {
		a.sup.Go("http", a.http.Run)
	}

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.Component("config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateAll(cfg) })
		a.sup.Go("config.reload", a.reloadLoop)
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Info("app started",
		logx.String("tick_spec", a.cfg.TickSpec()),
		logx.String("zone", a.disp.Config().Zone.String()),
		logx.Bool("http", a.http != nil),
		logx.Bool("nats", a.natsEnabled),
	)
	return nil
}

// runTick is the cron job. A tick lost to another replica is not a failure;
// an unreachable lock backend is retried after lockRetryDelay.
func (a *App) runTick(ctx context.Context) error {
	_, err := a.Tick(ctx, a.now())
	switch {
	case errors.Is(err, ErrHourLocked):
		return nil
	case errors.Is(err, ErrLockUnavailable):
		return engine.RetryAfter(err, lockRetryDelay)
	}
	return err
}

func (a *App) samplePending(ctx context.Context) error {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		a.met.PendingTimers.Set(float64(a.sched.Pending()))
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (a *App) health() map[string]any {
	snap := a.engine.Snapshot()
	out := map[string]any{
		"pending_releases": a.sched.Pending(),
		"queue_len":        snap.QueueLen,
		"in_flight":        snap.InFlight,
		"completed":        snap.Completed,
		"failed":           snap.Failed,
		"dropped":          snap.Dropped,
	}
	sched := a.sched.Snapshot()
	for _, sc := range sched.Schedules {
		if sc.Name == tickTaskName && !sc.Next.IsZero() {
			out["next_tick"] = sc.Next
		}
	}
	if !sched.NextDue.IsZero() {
		out["next_release"] = sched.NextDue
	}
	if a.sup != nil {
		out["goroutines"] = a.sup.Counters()
	}
	return out
}

// NextTicks lists the next n fire times of the configured tick schedule after
// from, whether or not the scheduler is enabled.
func (a *App) NextTicks(from time.Time, n int) ([]time.Time, error) {
	return a.sched.NextRuns(a.cfg.TickSpec(), from, n)
}

// Drain blocks until no release is pending, queued or running, or ctx ends.
func (a *App) Drain(ctx context.Context) error {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for {
		snap := a.engine.Snapshot()
		if a.sched.Pending() == 0 && snap.Outstanding == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		a.closeStores()
		a.closeLogs()
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Scheduler first so no timer enqueues into a stopping engine.
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "stores", time.Second, func(context.Context) error { a.closeStores(); return nil })

	a.log.Info("stopped")
	a.closeLogs()
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline. A
// step that overruns is left running and reported when it finishes.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}

func (a *App) closeStores() {
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			a.log.Warn("close lock", logx.Err(err))
		}
		a.locker = nil
	}
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			a.log.Warn("close run ledger", logx.Err(err))
		}
		a.runs = nil
	}
	if a.backlog != nil {
		if err := a.backlog.Close(); err != nil {
			a.log.Warn("close backlog", logx.Err(err))
		}
		a.backlog = nil
	}
}

func (a *App) closeLogs() {
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
