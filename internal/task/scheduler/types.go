package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"paypacer/internal/task/engine"
	logx "paypacer/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Enabled  bool
	Timezone string // IANA zone the cron specs are evaluated in
}

// Engine is the part of engine.Service the scheduler needs.
type Engine interface {
	Enqueue(t engine.Task) error
}

type TaskOptions = engine.TaskOptions

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	opt     TaskOptions
	entryID cron.EntryID
}

type pendingTimer struct {
	timer *time.Timer
	name  string
	key   string
	at    time.Time
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	engine Engine

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time

	tmu      sync.Mutex
	timerSeq uint64
	timers   map[uint64]pendingTimer
	firing   int // timers removed from the map but not yet enqueued
	stopped  bool
}

type ScheduleInfo struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Timeout string    `json:"timeout,omitempty"`
	Next    time.Time `json:"next,omitempty"`
	Prev    time.Time `json:"prev,omitempty"`
}

type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Timezone  string         `json:"timezone"`
	Pending   int            `json:"pending"`
	NextDue   time.Time      `json:"next_due,omitempty"`
	Schedules []ScheduleInfo `json:"schedules"`
}
