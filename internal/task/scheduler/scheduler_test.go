package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paypacer/internal/pacing"
	"paypacer/internal/task/engine"
	logx "paypacer/pkg/logx"
)

type fakeEngine struct {
	mu    sync.Mutex
	tasks []engine.Task
	err   error
	got   chan engine.Task
}

func newFakeEngine() *fakeEngine { return &fakeEngine{got: make(chan engine.Task, 64)} }

func (f *fakeEngine) Enqueue(t engine.Task) error {
	f.mu.Lock()
	f.tasks = append(f.tasks, t)
	err := f.err
	f.mu.Unlock()
	f.got <- t
	return err
}

func (f *fakeEngine) wait(t *testing.T) engine.Task {
	t.Helper()
	select {
	case task := <-f.got:
		return task
	case <-time.After(2 * time.Second):
		t.Fatalf("no task enqueued")
		return engine.Task{}
	}
}

func TestAfterEnqueuesWhenDue(t *testing.T) {
	eng := newFakeEngine()
	s := New(Config{Enabled: true, Timezone: "UTC"}, eng, logx.Nop())

	ran := false
	err := s.After("settle", "trx-1", 5*time.Millisecond, time.Second, TaskOptions{}, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("After: %v", err)
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", s.Pending())
	}
	task := eng.wait(t)
	if task.Name != "settle" || task.Key != "trx-1" || task.Timeout != time.Second {
		t.Fatalf("unexpected task %+v", task)
	}
	if err := task.Run(context.Background()); err != nil || !ran {
		t.Fatalf("task did not run the job")
	}
	if s.Pending() != 0 {
		t.Fatalf("fired timer still pending")
	}
}

func TestStopCancelsPendingTimers(t *testing.T) {
	eng := newFakeEngine()
	s := New(Config{Enabled: true, Timezone: "UTC"}, eng, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		_ = s.After("settle", "", time.Hour, 0, TaskOptions{}, func(context.Context) error { return nil })
	}
	s.Stop(context.Background())

	if s.Pending() != 0 {
		t.Fatalf("Pending after stop = %d", s.Pending())
	}
	if err := s.After("settle", "", 0, 0, TaskOptions{}, func(context.Context) error { return nil }); !errors.Is(err, engine.ErrStopped) {
		t.Fatalf("After on stopped scheduler err = %v", err)
	}
}

func TestSinkReleasesItemsInDelayOrder(t *testing.T) {
	eng := newFakeEngine()
	s := New(Config{Enabled: true}, eng, logx.Nop())

	var mu sync.Mutex
	var settled []pacing.ItemID
	sink := NewSink(s, "settle", 0, func(_ context.Context, id pacing.ItemID) error {
		mu.Lock()
		settled = append(settled, id)
		mu.Unlock()
		return nil
	})

	sink.Enqueue("a", 0)
	sink.Enqueue("c", 60*time.Millisecond)
	sink.Enqueue("b", 30*time.Millisecond)

	var keys []string
	for i := 0; i < 3; i++ {
		task := eng.wait(t)
		keys = append(keys, task.Key)
		if task.Opt.Overlap != engine.OverlapSkipIfRunning {
			t.Fatalf("item tasks must skip overlapping runs")
		}
		if err := task.Run(context.Background()); err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	if keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("release order = %v", keys)
	}
	if len(settled) != 3 {
		t.Fatalf("settled = %v", settled)
	}
}

func TestCronTickEnqueuesIntoEngine(t *testing.T) {
	eng := newFakeEngine()
	s := New(Config{Enabled: true, Timezone: "America/New_York"}, eng, logx.Nop())
	if err := s.AddCron("pacing.tick", "* * * * * *", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	task := eng.wait(t)
	if task.Name != "pacing.tick" || task.Opt.Overlap != engine.OverlapSkipIfRunning {
		t.Fatalf("unexpected tick task %+v", task)
	}
	snap := s.Snapshot()
	if snap.Timezone != "America/New_York" || len(snap.Schedules) != 1 || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestAddCronValidation(t *testing.T) {
	s := New(Config{}, newFakeEngine(), logx.Nop())
	job := func(context.Context) error { return nil }
	if err := s.AddCron("", "0 * * * *", 0, job); err == nil {
		t.Fatalf("expected name error")
	}
	if err := s.AddCron("tick", "not a spec", 0, job); err == nil {
		t.Fatalf("expected spec error")
	}
	if err := s.AddCron("tick", "0 * * * *", 0, job); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if err := s.AddCron("tick", "30 * * * *", 0, job); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if got := s.Snapshot().Schedules; len(got) != 1 || got[0].Spec != "30 * * * *" {
		t.Fatalf("upsert failed: %+v", got)
	}
	if !s.Remove("tick") || s.Remove("tick") {
		t.Fatalf("Remove semantics wrong")
	}
}

func TestStartRejectsUnknownZone(t *testing.T) {
	s := New(Config{Timezone: "Mars/Olympus"}, newFakeEngine(), logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestNextRunsHourlyInZone(t *testing.T) {
	s := New(Config{Timezone: "America/New_York"}, newFakeEngine(), logx.Nop())
	from := time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC) // 09:30 EST
	runs, err := s.NextRuns("0 * * * *", from, 2)
	if err != nil {
		t.Fatalf("NextRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].Hour() != 10 || runs[1].Hour() != 11 || runs[0].Minute() != 0 {
		t.Fatalf("runs = %v", runs)
	}

	for _, n := range []int{0, -3} {
		runs, err := s.NextRuns("0 * * * *", from, n)
		if err != nil || runs != nil {
			t.Fatalf("NextRuns(n=%d) = %v, %v; want nil", n, runs, err)
		}
	}
	if _, err := s.NextRuns("not a spec", from, -1); err == nil {
		t.Fatalf("bad spec accepted")
	}
}
