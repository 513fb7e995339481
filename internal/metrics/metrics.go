// Package metrics exposes Prometheus metrics for the pacing service.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paypacer/internal/eventbus"
	"paypacer/internal/pacing"
	"paypacer/internal/task/engine"
)

// Tick outcomes.
const (
	OutcomeDispatched = "dispatched"
	OutcomeIdle       = "idle"
	OutcomeEmpty      = "empty"
	OutcomeLocked     = "locked"
	OutcomeError      = "error"
)

type Metrics struct {
	reg *prometheus.Registry

	Ticks         *prometheus.CounterVec
	TickDuration  prometheus.Histogram
	Backlog       prometheus.Gauge
	SelectionSize prometheus.Gauge
	Step          prometheus.Gauge
	Dispatched    prometheus.Counter
	DispatchSpan  prometheus.Histogram
	PendingTimers prometheus.Gauge
	Tasks         *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
}

// New registers every metric on a fresh registry under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "paypacer"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Pacing invocations by outcome",
		}, []string{"outcome"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one pacing invocation",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		Backlog: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backlog_items",
			Help:      "Pending items seen by the last in-cycle invocation",
		}),
		SelectionSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selection_size",
			Help:      "Selection size computed by the last invocation",
		}),
		Step: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_step",
			Help:      "Cycle step of the last invocation, -1 when idle",
		}),
		Dispatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_items_total",
			Help:      "Items handed to the dispatch sink",
		}),
		DispatchSpan: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_span_seconds",
			Help:      "Delay of the last release in each plan",
			Buckets:   []float64{0, 60, 300, 600, 900, 1800, 3600, 7200},
		}),
		PendingTimers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_releases",
			Help:      "Scheduled releases whose delay has not elapsed",
		}),
		Tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Engine task results",
		}, []string{"task", "result"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Engine task run time including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveTick records one invocation classified by Outcome.
func (m *Metrics) ObserveTick(res pacing.Result, took time.Duration, outcome string) {
	m.Ticks.WithLabelValues(outcome).Inc()
	m.TickDuration.Observe(took.Seconds())
	if outcome == OutcomeLocked || outcome == OutcomeError {
		return
	}
	m.SelectionSize.Set(float64(res.Size))
	if !res.InCycle {
		m.Step.Set(-1)
		return
	}
	m.Step.Set(float64(res.Step))
	m.Backlog.Set(float64(res.Backlog))
	if n := res.Dispatched(); n > 0 {
		m.Dispatched.Add(float64(n))
		m.DispatchSpan.Observe(res.Plan.Span().Seconds())
	}
}

// Outcome classifies a finished invocation.
func Outcome(res pacing.Result, err error) string {
	switch {
	case err != nil:
		return OutcomeError
	case !res.InCycle:
		return OutcomeIdle
	case res.Dispatched() == 0:
		return OutcomeEmpty
	default:
		return OutcomeDispatched
	}
}

// Run counts engine task events from bus until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(512)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.observeEvent(e)
		}
	}
}

func (m *Metrics) observeEvent(e eventbus.Event) {
	ev, ok := e.Data.(engine.TaskEvent)
	if !ok {
		return
	}
	switch e.Type {
	case eventbus.TypeTaskFinished:
		m.Tasks.WithLabelValues(ev.Name, "ok").Inc()
		m.TaskDuration.WithLabelValues(ev.Name).Observe(ev.Duration.Seconds())
	case eventbus.TypeTaskFailed:
		m.Tasks.WithLabelValues(ev.Name, "failed").Inc()
		m.TaskDuration.WithLabelValues(ev.Name).Observe(ev.Duration.Seconds())
	case eventbus.TypeTaskDropped:
		m.Tasks.WithLabelValues(ev.Name, "dropped").Inc()
	}
}
