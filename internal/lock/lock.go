// Package lock guards a pacing invocation so only one replica dispatches a
// given hour.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotAcquired = errors.New("lock held elsewhere")

// Release frees a held lock.
type Release func(ctx context.Context) error

type Locker interface {
	// Acquire takes key for ttl. It returns ErrNotAcquired when another
	// holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
	Close() error
}

// HourKey names the canonical hour containing now.
func HourKey(now time.Time, zone *time.Location) string {
	if zone == nil {
		zone = time.UTC
	}
	return now.In(zone).Format("2006-01-02T15")
}

// Noop always succeeds. It is the single-replica default.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

func (Noop) Close() error { return nil }
