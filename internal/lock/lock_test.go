package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	logx "paypacer/pkg/logx"
)

type fakeRedis struct {
	keys     map[string]string
	setErr   error
	released []string
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, held := f.keys[key]; held {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		f.released = append(f.released, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisAcquireIsExclusive(t *testing.T) {
	fake := &fakeRedis{keys: map[string]string{}}
	l := newRedis(fake, "", logx.Nop())
	ctx := context.Background()

	release, err := l.Acquire(ctx, "2024-05-01T09", time.Hour)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "2024-05-01T09", time.Hour); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second Acquire err = %v", err)
	}
	if _, err := l.Acquire(ctx, "2024-05-01T10", time.Hour); err != nil {
		t.Fatalf("other hour: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(fake.released) != 1 || fake.released[0] != "paypacer:tick:2024-05-01T09" {
		t.Fatalf("released = %v", fake.released)
	}
}

func TestRedisAcquireError(t *testing.T) {
	boom := errors.New("connection refused")
	l := newRedis(&fakeRedis{keys: map[string]string{}, setErr: boom}, "x", logx.Nop())
	if _, err := l.Acquire(context.Background(), "k", time.Minute); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestHourKeyUsesZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}
	at := time.Date(2024, 5, 1, 13, 59, 0, 0, time.UTC)
	if got := HourKey(at, ny); got != "2024-05-01T09" {
		t.Fatalf("HourKey = %q", got)
	}
	if got := HourKey(at, nil); got != "2024-05-01T13" {
		t.Fatalf("HourKey(nil) = %q", got)
	}
}

func TestNoop(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background(), "k", time.Second)
	if err != nil || release(context.Background()) != nil {
		t.Fatalf("noop lock failed")
	}
}
