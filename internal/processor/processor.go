// Package processor settles released transactions.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paypacer/internal/backlog"
	"paypacer/internal/pacing"
	"paypacer/internal/task/engine"
	logx "paypacer/pkg/logx"
)

// Store is the part of backlog.Store the processor needs.
type Store interface {
	Get(ctx context.Context, id pacing.ItemID) (backlog.Transaction, error)
	MarkSettled(ctx context.Context, id pacing.ItemID, at time.Time) error
}

// Processor marks released transactions as paid. Settling is idempotent: an
// item that is already paid or gone is skipped without retry.
type Processor struct {
	store Store
	log   logx.Logger
	now   func() time.Time
}

func New(store Store, log logx.Logger) *Processor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Processor{store: store, log: log, now: time.Now}
}

// Settle is a scheduler.ItemJob.
func (p *Processor) Settle(ctx context.Context, id pacing.ItemID) error {
	tx, err := p.store.Get(ctx, id)
	switch {
	case errors.Is(err, backlog.ErrNotFound):
		p.log.Warn("settle skipped: transaction missing", logx.String("id", string(id)))
		return engine.NoRetry(err)
	case err != nil:
		return fmt.Errorf("load %s: %w", id, err)
	case tx.Paid():
		p.log.Debug("settle skipped: already paid", logx.String("id", string(id)))
		return nil
	}

	err = p.store.MarkSettled(ctx, id, p.now())
	switch {
	case errors.Is(err, backlog.ErrPaid):
		// Settled concurrently by another worker or replica.
		return nil
	case errors.Is(err, backlog.ErrNotFound):
		return engine.NoRetry(err)
	case err != nil:
		return fmt.Errorf("settle %s: %w", id, err)
	}
	p.log.Debug("transaction settled",
		logx.String("id", tx.ID),
		logx.String("company", tx.Company),
		logx.Int64("amount", tx.Amount),
		logx.Duration("age", p.now().Sub(tx.CreatedAt)),
	)
	return nil
}
