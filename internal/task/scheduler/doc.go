// Package scheduler triggers work into the task engine.
//
// It owns two kinds of triggers:
//   - cron schedules evaluated in a fixed time zone (the hourly pacing tick)
//   - one-shot delayed timers (the paced release of individual items)
//
// Execution always happens in engine.Service; the scheduler only enqueues.
package scheduler
