package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/metrics"
	"github.com/arcafs/arca/pkg/tasks"
)

// taskMetrics implements both tasks.PoolMetrics and
// tasks.MaintenanceMetrics, so one instance serves the pool and the
// handlers.
type taskMetrics struct {
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	fixityChecks *prometheus.CounterVec
}

var (
	_ tasks.PoolMetrics        = (*taskMetrics)(nil)
	_ tasks.MaintenanceMetrics = (*taskMetrics)(nil)
)

// NewTaskMetrics creates a new Prometheus-backed task metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil, pass nil to NewPool and NewMaintenance for zero overhead.
func NewTaskMetrics() *taskMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &taskMetrics{
		tasksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "arca_tasks_total",
				Help: "Total number of background task runs by kind and status",
			},
			[]string{"kind", "status"},
		),
		taskDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "arca_task_duration_milliseconds",
				Help: "Duration of background task runs in milliseconds",
				Buckets: []float64{
					10,     // 10ms - cleanup of a single row
					100,    // 100ms
					1000,   // 1s - small fixity checks
					10000,  // 10s - large fixity checks
					60000,  // 1m - multipart merges
					600000, // 10m - the task timeout default
				},
			},
			[]string{"kind"},
		),
		fixityChecks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "arca_fixity_checks_total",
				Help: "Total number of settled fixity verifications by outcome",
			},
			[]string{"outcome"}, // "ok", "mismatch", "missing"
		),
	}
}

func (m *taskMetrics) ObserveTask(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.tasksTotal.WithLabelValues(kind, status).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(duration.Seconds() * 1000)
}

func (m *taskMetrics) RecordFixityCheck(outcome string) {
	if m == nil {
		return
	}
	m.fixityChecks.WithLabelValues(outcome).Inc()
}

// ============================================================================
// Queue depth
// ============================================================================

// queueDepthCollector reports the task queue depth at scrape time.
type queueDepthCollector struct {
	queue *tasks.Queue

	pendingDesc *prometheus.Desc
	activeDesc  *prometheus.Desc
}

// RegisterQueueDepthCollector registers a collector exporting the pending
// and active task counts of the queue.
//
// No-op if metrics are not enabled (InitRegistry not called).
func RegisterQueueDepthCollector(q *tasks.Queue) {
	if !metrics.IsEnabled() {
		return
	}

	metrics.GetRegistry().MustRegister(&queueDepthCollector{
		queue: q,
		pendingDesc: prometheus.NewDesc(
			"arca_task_queue_pending",
			"Number of tasks waiting to run",
			nil, nil,
		),
		activeDesc: prometheus.NewDesc(
			"arca_task_queue_active",
			"Number of tasks currently claimed by workers",
			nil, nil,
		),
	})
}

func (c *queueDepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pendingDesc
	ch <- c.activeDesc
}

func (c *queueDepthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pending, err := c.queue.PendingCount(ctx)
	if err != nil {
		logger.Warn("queue depth scrape failed", "error", err)
		return
	}
	active, err := c.queue.ActiveCount(ctx)
	if err != nil {
		logger.Warn("queue depth scrape failed", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.pendingDesc, prometheus.GaugeValue, float64(pending))
	ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(active))
}
