// Package metrics exposes Prometheus collectors for the background workers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "trialops"
	subsystem = "housekeeping"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// CronJobMetrics tracks housekeeping job runs: how long each job took and
// how often it succeeded or failed. A nil receiver or an unregistered
// instance is a no-op so workers can run without a metrics endpoint.
type CronJobMetrics struct {
	runSeconds *prometheus.HistogramVec
	runs       *prometheus.CounterVec
}

// NewCronJobMetrics registers the housekeeping collectors on reg. A nil
// registerer yields a no-op instance.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}

	m := &CronJobMetrics{
		runSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of housekeeping job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_runs_total",
			Help:      "Housekeeping job runs by outcome.",
		}, []string{"job", "outcome"}),
	}
	reg.MustRegister(m.runSeconds, m.runs)
	return m
}

// ObserveDuration records how long the named job ran.
func (m *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.runSeconds == nil {
		return
	}
	m.runSeconds.WithLabelValues(jobLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a completed run of the named job.
func (m *CronJobMetrics) IncSuccess(job string) {
	m.countRun(job, outcomeSuccess)
}

// IncFailure counts a failed run of the named job.
func (m *CronJobMetrics) IncFailure(job string) {
	m.countRun(job, outcomeFailure)
}

func (m *CronJobMetrics) countRun(job, outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(jobLabel(job), outcome).Inc()
}

func jobLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
