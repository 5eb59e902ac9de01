package gateway

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/tasksched/internal/scheduler"
)

// Metrics counts executions. The atomic counters feed /status; the
// Prometheus collectors feed /metrics.
type Metrics struct {
	executions   atomic.Int64
	failures     atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
	lastRun      atomic.Int64 // unix nanoseconds

	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	registered prometheus.GaugeFunc
}

// Compile-time check.
var _ scheduler.Observer = (*Metrics)(nil)

// NewMetrics builds the collectors on a private registry. registered is
// sampled at scrape time for the tasks gauge and may be nil.
func NewMetrics(registered func() int) *Metrics {
	if registered == nil {
		registered = func() int { return 0 }
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasksched",
			Name:      "task_executions_total",
			Help:      "Scheduled task executions by outcome.",
		}, []string{"task_id", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tasksched",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of scheduled task executions.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"task_id"}),
	}
	m.registered = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tasksched",
		Name:      "tasks_registered",
		Help:      "Tasks currently registered with the scheduler.",
	}, func() float64 { return float64(registered()) })

	m.registry.MustRegister(
		m.runs,
		m.duration,
		m.registered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe implements scheduler.Observer.
func (m *Metrics) Observe(ev scheduler.Event) {
	res := ev.Result
	m.executions.Add(1)
	m.totalLatency.Add(int64(res.Duration))
	m.lastRun.Store(res.Started.Add(res.Duration).UnixNano())

	outcome := "success"
	if !res.Success {
		outcome = "failure"
		m.failures.Add(1)
	}
	m.runs.WithLabelValues(ev.TaskID, outcome).Inc()
	m.duration.WithLabelValues(ev.TaskID).Observe(res.Duration.Seconds())
}

// Registry exposes the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	executions := m.executions.Load()
	snap := MetricsSnapshot{
		Executions: executions,
		Failures:   m.failures.Load(),
	}
	if executions > 0 {
		snap.AvgDuration = time.Duration(m.totalLatency.Load() / executions)
	}
	if ns := m.lastRun.Load(); ns != 0 {
		snap.LastRunAt = time.Unix(0, ns).UTC()
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Executions  int64         `json:"executions"`
	Failures    int64         `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
	LastRunAt   time.Time     `json:"last_run_at,omitzero"`
}
