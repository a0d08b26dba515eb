// Package jobmetrics instruments the worker's background jobs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics holds the worker collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rows        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer, or once on the
// default registerer when registerer is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobid_jobs_total",
			Help: "Worker job runs by job and status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autobid_job_duration_seconds",
			Help:    "Worker job run time.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobid_job_rows_total",
			Help: "Rows written by worker jobs.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autobid_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		now: time.Now,
	}
	registerer.MustRegister(m.runs, m.duration, m.rows, m.lastSuccess)
	return m
}

// Run measures one job execution. Call End with the handler's result.
type Run struct {
	metrics *Metrics
	job     string
	started time.Time
}

// Track starts measuring a run of job.
func (m *Metrics) Track(job string) *Run {
	run := &Run{metrics: m, job: job}
	if m != nil {
		run.started = m.now()
	}
	return run
}

// End records the outcome and hands err back so handlers can
// `defer func() { err = run.End(err) }()`.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	m := r.metrics
	finished := m.now()
	m.duration.WithLabelValues(r.job).Observe(finished.Sub(r.started).Seconds())
	if err != nil {
		m.runs.WithLabelValues(r.job, statusFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(r.job, statusSuccess).Inc()
	m.lastSuccess.WithLabelValues(r.job).Set(float64(finished.Unix()))
	return nil
}

// AddRows counts rows a job changed.
func (m *Metrics) AddRows(job string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.rows.WithLabelValues(job).Add(float64(count))
}
