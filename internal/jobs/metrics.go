package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	archived prometheus.Counter
	skipped  prometheus.Counter
	orderErr prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer, or the default
// Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records duration and outcome, returning err untouched.
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

// AddArchived counts orders moved to the archive.
func (m *Metrics) AddArchived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.archived.Add(float64(n))
}

// AddArchiveFailures counts orders the sweeper could not archive.
func (m *Metrics) AddArchiveFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orderErr.Add(float64(n))
}

// IncSweepSkipped counts sweeps skipped because another run held the lock.
func (m *Metrics) IncSweepSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmacy_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	archived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_orders_archived_total",
		Help: "Finished orders moved to the archive.",
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_archive_sweeps_skipped_total",
		Help: "Archive sweeps skipped because another run held the lock.",
	})
	orderErr := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pharmacy_orders_archive_failures_total",
		Help: "Finished orders that failed to archive and will be retried.",
	})
	registerer.MustRegister(runs, failures, duration, archived, skipped, orderErr)
	return &Metrics{runs: runs, failures: failures, duration: duration, archived: archived, skipped: skipped, orderErr: orderErr}
}
