package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paypacer/internal/eventbus"
	"paypacer/internal/lock"
	"paypacer/internal/metrics"
	"paypacer/internal/pacing"
	"paypacer/internal/storage"
	logx "paypacer/pkg/logx"
)

var (
	// ErrHourLocked reports that another replica already took the hour.
	ErrHourLocked = errors.New("hour already taken by another replica")

	// ErrLockUnavailable wraps lock backend failures. The tick fails closed.
	ErrLockUnavailable = errors.New("hour lock unavailable")
)

// Tick runs one pacing invocation at now: take the hour lock, dispatch, then
// record the run in the ledger, metrics and the event bus.
func (a *App) Tick(ctx context.Context, now time.Time) (pacing.Result, error) {
	start := time.Now()
	zone := a.disp.Config().Zone
	key := lock.HourKey(now, zone)

	release, err := a.locker.Acquire(ctx, key, a.lockTTL)
	if err != nil {
		res := pacing.Result{At: now, Label: pacing.HourLabel(now, zone)}
		if errors.Is(err, lock.ErrNotAcquired) {
			a.log.Info("hour already dispatched elsewhere; skipping", logx.String("hour_key", key))
			a.finish(ctx, res, start, metrics.OutcomeLocked, "locked", nil)
			return res, fmt.Errorf("%w: %s", ErrHourLocked, key)
		}
		err = fmt.Errorf("%w: %w", ErrLockUnavailable, err)
		a.finish(ctx, res, start, metrics.OutcomeError, "", err)
		return res, err
	}

	res, err := a.disp.Run(ctx, now)
	if err != nil {
		// Free the hour so a retry, here or on another replica, can take it.
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			a.log.Warn("release hour lock", logx.String("hour_key", key), logx.Err(rerr))
		}
	}
	a.finish(ctx, res, start, metrics.Outcome(res, err), "", err)
	return res, err
}

// Preview computes the decision at now without dispatching or locking.
func (a *App) Preview(ctx context.Context, now time.Time) (pacing.Result, error) {
	return a.disp.Preview(ctx, now)
}

func (a *App) finish(ctx context.Context, res pacing.Result, start time.Time, outcome, skipped string, err error) {
	took := time.Since(start)
	rec := runRecord(res, took, skipped, err)

	if a.runs != nil {
		if aerr := a.runs.AppendRun(context.WithoutCancel(ctx), rec); aerr != nil {
			a.log.Warn("run ledger append failed", logx.Err(aerr))
		}
	}
	a.met.ObserveTick(res, took, outcome)

	at := time.Now()
	a.bus.Publish(eventbus.Event{Type: eventbus.TypePacingTick, Time: at, Data: rec})
	if res.Dispatched() > 0 {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypePacingDispatched, Time: at, Data: rec})
	}

	fields := []logx.Field{
		logx.String("hour", rec.Label),
		logx.String("outcome", outcome),
		logx.Int("backlog", rec.Backlog),
		logx.Int("size", rec.Size),
		logx.Int("dispatched", rec.Dispatched),
		logx.Duration("took", took),
	}
	switch {
	case err != nil && outcome == metrics.OutcomeError:
		a.log.Error("pacing tick failed", append(fields, logx.Err(err))...)
	case res.InCycle:
		a.log.Info("pacing tick", append(fields, logx.Int("step", rec.Step), logx.String("sub_cycle", rec.SubCycle))...)
	default:
		a.log.Debug("pacing tick", fields...)
	}
}

func runRecord(res pacing.Result, took time.Duration, skipped string, err error) storage.RunRecord {
	rec := storage.RunRecord{
		At:         res.At,
		Label:      res.Label,
		InCycle:    res.InCycle,
		Backlog:    res.Backlog,
		Size:       res.Size,
		Dispatched: res.Dispatched(),
		Waves:      res.Plan.Waves(),
		SpanMS:     res.Plan.Span().Milliseconds(),
		Skipped:    skipped,
		TookMS:     took.Milliseconds(),
	}
	if res.InCycle {
		rec.Step = int(res.Step)
		rec.SubCycle = res.SubCycle.String()
	} else {
		rec.Step = -1
		if skipped == "" {
			rec.Skipped = "idle"
		}
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
