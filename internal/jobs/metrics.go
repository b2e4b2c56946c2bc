package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	entities    *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
	skippedRuns *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Entity outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeMismatch  = "mismatch"
)

// AddEntities counts per-entity outcomes inside a batch run.
func (m *Metrics) AddEntities(job, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.entities.WithLabelValues(job, outcome).Add(float64(count))
}

// AddSideEffects counts records written by a job, such as ledger backfills or
// queued emails.
func (m *Metrics) AddSideEffects(job, kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sideEffects.WithLabelValues(job, kind).Add(float64(count))
}

// SkipRun records a run that was skipped because another holder owned the job lock.
func (m *Metrics) SkipRun(job string) {
	if m == nil {
		return
	}
	m.skippedRuns.WithLabelValues(job).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendai_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendai_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vendai_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"job"})
	entities := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendai_job_entities_total",
		Help: "Entities handled by batch jobs grouped by outcome.",
	}, []string{"job", "outcome"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendai_job_side_effects_total",
		Help: "Records written by background jobs grouped by kind.",
	}, []string{"job", "kind"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendai_job_lock_skips_total",
		Help: "Job runs skipped because another worker held the job lock.",
	}, []string{"job"})
	registerer.MustRegister(runs, failures, duration, entities, sideEffects, skipped)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		entities:    entities,
		sideEffects: sideEffects,
		skippedRuns: skipped,
	}
}
