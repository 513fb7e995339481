package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped: same key already queued or running")
)

// RetryAfterError carries the delay a task asked for before its next attempt.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// NoRetry makes err final: the attempt is recorded as failed and not retried.
// Settlement uses it for items that no longer exist.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err}
}

func IsNoRetry(err error) bool {
	var p *permanent
	return errors.As(err, &p)
}

// RetryAfter asks for the next attempt no sooner than after. The engine caps
// the hint at RetryMaxDelay and adds jitter.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &delayed{err: err, after: max(after, 0)}
}

type permanent struct{ err error }

func (p *permanent) Error() string { return "permanent: " + p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

type delayed struct {
	err   error
	after time.Duration
}

func (d *delayed) Error() string             { return fmt.Sprintf("retry in %s: %v", d.after, d.err) }
func (d *delayed) Unwrap() error             { return d.err }
func (d *delayed) RetryAfter() time.Duration { return d.after }
