package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the cron runner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	Jobs          *prometheus.CounterVec
	RecordsSynced prometheus.Counter
	StuckJobs     prometheus.Gauge
	LastSuccess   prometheus.Gauge
}

// NewMetrics registers the runner collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailup_sync",
			Name:      "cron_runs_total",
			Help:      "Cron runs by outcome.",
		}, []string{"outcome"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mailup_sync",
			Name:      "cron_run_duration_seconds",
			Help:      "Time spent in cron runs that held the lock.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailup_sync",
			Name:      "jobs_processed_total",
			Help:      "Jobs processed by result.",
		}, []string{"result"}),

		RecordsSynced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mailup_sync",
			Name:      "records_synced_total",
			Help:      "Customer records cleared after a successful dispatch.",
		}),

		StuckJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailup_sync",
			Name:      "stuck_jobs",
			Help:      "Jobs found in started state past the stuck threshold at the last run.",
		}),

		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailup_sync",
			Name:      "cron_last_success_timestamp_seconds",
			Help:      "Unix time of the last cron run that completed.",
		}),
	}
}

func (m *Metrics) observeRun(outcome string, started time.Time, finished time.Time) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	if outcome == RunOutcomeCompleted || outcome == RunOutcomeFailed {
		m.RunDuration.Observe(finished.Sub(started).Seconds())
	}
	if outcome == RunOutcomeCompleted {
		m.LastSuccess.Set(float64(finished.Unix()))
	}
}

func (m *Metrics) observeJob(result string, records int) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(result).Inc()
	if records > 0 {
		m.RecordsSynced.Add(float64(records))
	}
}

func (m *Metrics) setStuckJobs(n int) {
	if m == nil {
		return
	}
	m.StuckJobs.Set(float64(n))
}
