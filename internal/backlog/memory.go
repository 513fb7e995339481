package backlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"paypacer/internal/pacing"
)

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu  sync.RWMutex
	txs map[string]Transaction
}

func NewMemory() *Memory {
	return &Memory{txs: map[string]Transaction{}}
}

func (m *Memory) Migrate(context.Context) error { return nil }
func (m *Memory) Close() error                  { return nil }

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tx := range m.txs {
		if tx.Status == StatusUnpaid {
			n++
		}
	}
	return n, nil
}

func (m *Memory) FetchOldest(_ context.Context, n int) ([]pacing.ItemID, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	pending := make([]Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		if tx.Status == StatusUnpaid {
			pending = append(pending, tx)
		}
	}
	m.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	pending = pending[:min(n, len(pending))]
	out := make([]pacing.ItemID, len(pending))
	for i, tx := range pending {
		out[i] = pacing.ItemID(tx.ID)
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, id pacing.ItemID) (Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[string(id)]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx, nil
}

func (m *Memory) MarkSettled(_ context.Context, id pacing.ItemID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[string(id)]
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	case tx.Paid():
		return fmt.Errorf("%w: %s", ErrPaid, id)
	}
	at = at.UTC()
	tx.Status = StatusPaid
	tx.SettledAt = &at
	tx.UpdatedAt = at
	m.txs[tx.ID] = tx
	return nil
}

// Add inserts the batch atomically: a duplicate ID rejects every row.
func (m *Memory) Add(_ context.Context, txs ...Transaction) error {
	now := time.Now().UTC()
	rows := make([]Transaction, len(txs))
	seen := make(map[string]struct{}, len(txs))
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, tx := range txs {
		tx = normalize(tx, now)
		_, inBatch := seen[tx.ID]
		_, stored := m.txs[tx.ID]
		if inBatch || stored {
			return fmt.Errorf("duplicate transaction id %s", tx.ID)
		}
		seen[tx.ID] = struct{}{}
		rows[i] = tx
	}
	for _, tx := range rows {
		m.txs[tx.ID] = tx
	}
	return nil
}
