package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JobMetrics tracks background job execution.
//
// All methods handle a nil receiver, so a nil *JobMetrics acts as a
// no-op when metrics are disabled.
type JobMetrics struct {
	// Executions counts finished jobs by name and outcome.
	// Labels: job, status=[succeeded, failed]
	Executions *prometheus.CounterVec

	// Duration observes job run time by name.
	Duration *prometheus.HistogramVec

	// Enqueued counts jobs accepted into the queue.
	Enqueued *prometheus.CounterVec
}

// NewJobMetrics creates the job metric set, or nil when metrics are
// disabled.
func NewJobMetrics() *JobMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &JobMetrics{
		Executions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftbox_jobs_executed_total",
				Help: "Total number of finished background jobs by name and status",
			},
			[]string{"job", "status"},
		),
		Duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftbox_job_duration_seconds",
				Help:    "Background job run time by name",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"job"},
		),
		Enqueued: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftbox_jobs_enqueued_total",
				Help: "Total number of jobs accepted into the queue by name",
			},
			[]string{"job"},
		),
	}
}

// RecordEnqueued records a job accepted into the queue.
func (m *JobMetrics) RecordEnqueued(job string) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(job).Inc()
}

// RecordExecution records a finished job.
func (m *JobMetrics) RecordExecution(job string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	status := "succeeded"
	if failed {
		status = "failed"
	}
	m.Executions.WithLabelValues(job, status).Inc()
	m.Duration.WithLabelValues(job).Observe(duration.Seconds())
}
