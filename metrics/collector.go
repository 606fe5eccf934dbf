// Package metrics exposes the daemon's ambient operability surface:
// prometheus gauges/counters/histograms, a liveness/metrics HTTP server,
// an optional websocket status stream, and OpenTelemetry trace spans for
// the ReAct loop. None of this carries task data — it exists purely so an
// operator can watch the process from outside.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultNamespace is the metric name prefix used by the wired daemon.
// Tests construct a Collector with a unique namespace instead, since
// promauto panics on duplicate registration against the default registry.
const DefaultNamespace = "cradle"

// Collector holds every prometheus instrument the daemon publishes.
type Collector struct {
	beat           prometheus.Gauge
	pendingTasks   prometheus.Gauge
	totalTasks     prometheus.Gauge
	evolutions     prometheus.Gauge
	taskOutcomes   *prometheus.CounterVec
	taskDuration   prometheus.Histogram
	llmRequests    *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	sandboxRuns    *prometheus.CounterVec
	sandboxLatency prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers every instrument, namespaced, against the default
// prometheus registry and returns a Collector ready to be wired into the
// scheduler, task engine, LLM router, and sandbox driver. Production
// callers should pass DefaultNamespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		logger: logger,

		beat: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "heartbeat_beat", Help: "Current heartbeat beat count.",
		}),
		pendingTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tasks_pending", Help: "Tasks currently queued.",
		}),
		totalTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tasks_total", Help: "Tasks created since process start.",
		}),
		evolutions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "evolutions_total", Help: "Self-evolution cycles run.",
		}),
		taskOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "task_outcomes_total", Help: "Tasks reaching a terminal status, by status.",
		}, []string{"status"}),
		taskDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds", Help: "Wall time from task creation to a terminal status.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		llmRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total", Help: "LLM provider calls, by provider and outcome.",
		}, []string{"provider", "status"}),
		llmLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_duration_seconds", Help: "LLM provider call latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		sandboxRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sandbox_runs_total", Help: "Sandbox executions, by method and outcome.",
		}, []string{"method", "status"}),
		sandboxLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sandbox_run_duration_seconds", Help: "Sandbox execution wall time.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}
}

// SetBeat implements heartbeat.Gauges.
func (c *Collector) SetBeat(n int64) { c.beat.Set(float64(n)) }

// SetPendingTasks implements heartbeat.Gauges.
func (c *Collector) SetPendingTasks(n int) { c.pendingTasks.Set(float64(n)) }

// SetTotalTasks implements heartbeat.Gauges.
func (c *Collector) SetTotalTasks(n int) { c.totalTasks.Set(float64(n)) }

// SetEvolutions implements heartbeat.Gauges.
func (c *Collector) SetEvolutions(n int64) { c.evolutions.Set(float64(n)) }

// ObserveTaskOutcome records one task reaching a terminal status, and the
// wall time it took to get there.
func (c *Collector) ObserveTaskOutcome(status string, elapsed time.Duration) {
	c.taskOutcomes.WithLabelValues(status).Inc()
	c.taskDuration.Observe(elapsed.Seconds())
}

// ObserveLLMCall records one LLM provider attempt.
func (c *Collector) ObserveLLMCall(provider, status string, elapsed time.Duration) {
	c.llmRequests.WithLabelValues(provider, status).Inc()
	c.llmLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveSandboxRun records one sandbox execution.
func (c *Collector) ObserveSandboxRun(method, status string, elapsed time.Duration) {
	c.sandboxRuns.WithLabelValues(method, status).Inc()
	c.sandboxLatency.Observe(elapsed.Seconds())
}
