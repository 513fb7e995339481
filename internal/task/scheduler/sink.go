package scheduler

import (
	"context"
	"time"

	"paypacer/internal/pacing"
	"paypacer/internal/task/engine"
)

// ItemJob processes one released item.
type ItemJob func(ctx context.Context, id pacing.ItemID) error

// Sink releases pacing assignments onto one-shot timers. When a timer fires
// the item becomes an engine task keyed by its id, so the same item is never
// queued twice at once.
type Sink struct {
	svc     *Service
	name    string
	timeout time.Duration
	job     ItemJob
}

func NewSink(svc *Service, name string, timeout time.Duration, job ItemJob) *Sink {
	return &Sink{svc: svc, name: name, timeout: timeout, job: job}
}

// Enqueue implements pacing.Sink.
func (k *Sink) Enqueue(id pacing.ItemID, delay time.Duration) {
	job := k.job
	err := k.svc.After(k.name, string(id), delay, k.timeout, TaskOptions{Overlap: engine.OverlapSkipIfRunning}, func(ctx context.Context) error {
		return job(ctx, id)
	})
	if err != nil {
		k.svc.reportEnqueueError(k.name, err)
	}
}

var _ pacing.Sink = (*Sink)(nil)
