package pacing

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "paypacer/pkg/logx"
)

// ItemID identifies a pending work item.
type ItemID string

// Backlog is the pending-work collaborator. Implementations must return
// identifiers oldest first in a stable order, and return at most n of them.
type Backlog interface {
	Count(ctx context.Context) (int, error)
	FetchOldest(ctx context.Context, n int) ([]ItemID, error)
}

// Sink schedules asynchronous processing of id after delay.
// It is fire-and-forget; implementations surface their own failures.
type Sink interface {
	Enqueue(id ItemID, delay time.Duration)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(id ItemID, delay time.Duration)

func (f SinkFunc) Enqueue(id ItemID, delay time.Duration) { f(id, delay) }

// Assignment is one planned release.
type Assignment struct {
	ID    ItemID
	Wave  int
	Delay time.Duration
}

// Plan is the ordered set of releases produced by one invocation.
type Plan []Assignment

// Span is the delay of the last assignment (0 for an empty plan).
func (p Plan) Span() time.Duration {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].Delay
}

// Waves returns the number of waves in the plan.
func (p Plan) Waves() int {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].Wave + 1
}

// Waves partitions ids in order into slices of at most size items.
// The last wave may be shorter. A size below 1 yields a single wave.
func Waves(ids []ItemID, size int) [][]ItemID {
	if len(ids) == 0 {
		return nil
	}
	if size < 1 {
		size = len(ids)
	}
	out := make([][]ItemID, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

// PlanWaves assigns each id a delay. Within a wave consecutive delays differ by
// windowSeconds/len(wave) whole seconds; the running delay carries across waves.
func PlanWaves(ids []ItemID, waveSize, windowSeconds int) Plan {
	plan := make(Plan, 0, len(ids))
	cumulative := 0
	for w, wave := range Waves(ids, waveSize) {
		if len(wave) == 0 {
			continue
		}
		spacing := windowSeconds / len(wave)
		for _, id := range wave {
			plan = append(plan, Assignment{ID: id, Wave: w, Delay: time.Duration(cumulative) * time.Second})
			cumulative += spacing
		}
	}
	return plan
}

// Dispatch fetches up to size of the oldest items and hands each to sink with
// its planned delay. The returned plan is what was enqueued.
func Dispatch(ctx context.Context, backlog Backlog, size, waveSize, windowSeconds int, sink Sink) (Plan, error) {
	if size <= 0 {
		return nil, nil
	}
	ids, err := backlog.FetchOldest(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("fetch oldest %d: %w", size, err)
	}
	if len(ids) > size {
		ids = ids[:size]
	}
	plan := PlanWaves(ids, waveSize, windowSeconds)
	for _, a := range plan {
		sink.Enqueue(a.ID, a.Delay)
	}
	return plan, nil
}

// Result describes one invocation.
type Result struct {
	At       time.Time
	Label    string
	Step     Step
	InCycle  bool
	SubCycle SubCycle
	Backlog  int
	Size     int
	Plan     Plan
}

// Dispatched returns the number of items handed to the sink.
func (r Result) Dispatched() int { return len(r.Plan) }

// Dispatcher runs pacing invocations against a backlog and a sink.
type Dispatcher struct {
	cfg     Config
	backlog Backlog
	sink    Sink
	log     logx.Logger
}

// NewDispatcher validates cfg and binds the collaborators.
func NewDispatcher(cfg Config, backlog Backlog, sink Sink, log logx.Logger) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backlog == nil {
		return nil, errors.New("pacing: backlog is required")
	}
	if sink == nil {
		return nil, errors.New("pacing: sink is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{cfg: cfg, backlog: backlog, sink: sink, log: log}, nil
}

// Config returns the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.cfg }

// Run performs one invocation at now.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) (Result, error) {
	return d.run(ctx, now, d.sink)
}

// Preview computes what Run would dispatch at now without enqueueing anything.
func (d *Dispatcher) Preview(ctx context.Context, now time.Time) (Result, error) {
	return d.run(ctx, now, SinkFunc(func(ItemID, time.Duration) {}))
}

func (d *Dispatcher) run(ctx context.Context, now time.Time, sink Sink) (Result, error) {
	res := Result{At: now, Label: HourLabel(now, d.cfg.Zone)}

	step, ok := d.cfg.Resolve(now)
	if !ok {
		d.log.Debug("idle hour; nothing to release", logx.String("hour", res.Label))
		return res, nil
	}
	res.Step = step
	res.InCycle = true
	res.SubCycle = d.cfg.SubCycleOf(step)

	count, err := d.backlog.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("count backlog: %w", err)
	}
	res.Backlog = count
	res.Size = d.cfg.SelectionSize(step, count)

	plan, err := Dispatch(ctx, d.backlog, res.Size, d.cfg.WaveSize, d.cfg.WindowSeconds, sink)
	if err != nil {
		return res, err
	}
	res.Plan = plan
	if len(plan) == 0 {
		d.log.Debug("backlog empty", logx.String("hour", res.Label), logx.Int("step", int(step)))
		return res, nil
	}

	d.log.Debug("selection dispatched",
		logx.String("hour", res.Label),
		logx.Int("step", int(step)),
		logx.String("sub_cycle", res.SubCycle.String()),
		logx.Int("backlog", count),
		logx.Int("size", res.Size),
		logx.Int("dispatched", len(plan)),
		logx.Int("waves", plan.Waves()),
		logx.Duration("span", plan.Span()),
	)
	return res, nil
}
