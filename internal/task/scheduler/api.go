package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"paypacer/internal/task/engine"
	logx "paypacer/pkg/logx"
)

// AddCron registers job under name, replacing any schedule with the same
// name. Overlapping runs are skipped while a previous one is queued or running.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	return s.AddCronOpt(name, spec, timeout, TaskOptions{Overlap: engine.OverlapSkipIfRunning}, job)
}

func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeScheduleLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, opt: opt})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Time("next", s.c.Entry(d.entryID).Next))
	return nil
}

// Remove unregisters the named cron schedule.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeScheduleLocked(strings.TrimSpace(name))
}

func (s *Service) removeScheduleLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name, timeout, job, opt := d.name, d.timeout, d.job, d.opt
	id, err := s.c.AddFunc(d.spec, func() {
		if s.engine == nil {
			return
		}
		err := s.engine.Enqueue(engine.Task{Name: name, Timeout: timeout, Run: job, Opt: opt})
		s.reportEnqueueError(name, err)
	})
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

// After enqueues job into the engine once delay has elapsed. key groups the
// task for the engine's overlap policy. Timers are dropped by Stop.
func (s *Service) After(name, key string, delay, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	delay = max(delay, 0)

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if s.stopped {
		return engine.ErrStopped
	}
	s.timerSeq++
	id := s.timerSeq
	t := time.AfterFunc(delay, func() {
		s.tmu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		if live {
			s.firing++
		}
		s.tmu.Unlock()
		if !live {
			return
		}
		defer func() {
			s.tmu.Lock()
			s.firing--
			s.tmu.Unlock()
		}()
		if s.engine == nil {
			return
		}
		err := s.engine.Enqueue(engine.Task{Name: name, Key: key, Timeout: timeout, Run: job, Opt: opt})
		s.reportEnqueueError(name, err)
	})
	s.timers[id] = pendingTimer{timer: t, name: name, key: key, at: time.Now().Add(delay)}
	return nil
}

// Pending returns the number of one-shot timers that have not handed their
// job to the engine yet.
func (s *Service) Pending() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return len(s.timers) + s.firing
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Timezone: strings.TrimSpace(s.cfg.Timezone)}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Spec: d.spec}
		if d.timeout > 0 {
			info.Timeout = d.timeout.String()
		}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, info)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	snap.Pending = len(s.timers)
	for _, p := range s.timers {
		if snap.NextDue.IsZero() || p.at.Before(snap.NextDue) {
			snap.NextDue = p.at
		}
	}
	s.tmu.Unlock()
	return snap
}

// NextRuns lists the next n fire times of spec in the scheduler zone after from.
// It returns nil for n <= 0.
func (s *Service) NextRuns(spec string, from time.Time, n int) ([]time.Time, error) {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	t := from.In(s.Location())
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

