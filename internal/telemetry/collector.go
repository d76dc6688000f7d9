package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates engine counters for Prometheus scraping.
type Collector struct {
	registry *prometheus.Registry

	tasksClaimed   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksResumed   prometheus.Counter
	tasksClosed    prometheus.Counter
	conflicts      prometheus.Counter
	decisions      *prometheus.CounterVec
	taskDuration   prometheus.Histogram
}

// NewCollector creates a collector backed by a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tasksClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joddb_tasks_claimed_total",
			Help: "Total number of tasks claimed by technicians",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joddb_tasks_completed_total",
			Help: "Total number of tasks completed and sent to QA",
		}),
		tasksResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joddb_tasks_resumed_total",
			Help: "Total number of rework tasks returned to the available pool",
		}),
		tasksClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joddb_tasks_closed_total",
			Help: "Total number of tasks archived after rework was exhausted",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joddb_transition_conflicts_total",
			Help: "Total number of lifecycle transitions lost to a concurrent actor",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "joddb_review_decisions_total",
			Help: "Total number of review decisions recorded, by stage and decision",
		}, []string{"stage", "decision"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "joddb_task_actual_seconds",
			Help:    "Distribution of actual task execution time in seconds",
			Buckets: prometheus.ExponentialBuckets(60, 2, 10),
		}),
	}

	c.registry.MustRegister(
		c.tasksClaimed,
		c.tasksCompleted,
		c.tasksResumed,
		c.tasksClosed,
		c.conflicts,
		c.decisions,
		c.taskDuration,
	)
	return c
}

// Handler returns the HTTP handler exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordClaim notes a successful task claim. All record methods tolerate a
// nil collector so wiring code can skip telemetry entirely.
func (c *Collector) RecordClaim() {
	if c == nil {
		return
	}
	c.tasksClaimed.Inc()
}

// RecordCompletion notes a completed task and its actual duration.
func (c *Collector) RecordCompletion(actualSeconds int64) {
	if c == nil {
		return
	}
	c.tasksCompleted.Inc()
	c.taskDuration.Observe(float64(actualSeconds))
}

// RecordDecision notes a review decision.
func (c *Collector) RecordDecision(stage, decision string) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(stage, decision).Inc()
}

// RecordResume notes a rework task returning to the pool.
func (c *Collector) RecordResume() {
	if c == nil {
		return
	}
	c.tasksResumed.Inc()
}

// RecordClose notes an archived task.
func (c *Collector) RecordClose() {
	if c == nil {
		return
	}
	c.tasksClosed.Inc()
}

// RecordConflict notes a transition lost to a concurrent actor.
func (c *Collector) RecordConflict() {
	if c == nil {
		return
	}
	c.conflicts.Inc()
}
