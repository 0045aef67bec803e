package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mealmarket"

// Run results for mealmarket_job_runs_total.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// CronJobMetrics covers the scheduled marketplace jobs: meal expiry, order
// TTL, earnings backfill and the payout rollup. A nil receiver is a no-op.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rows        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	leaseLost   prometheus.Counter
	now         func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Cron job executions by result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Cron job wall time.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_rows_affected_total",
			Help:      "Rows changed by cron jobs (meals deactivated, orders cancelled, ledger rows written).",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job.",
		}, []string{"job"}),
		leaseLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cron_lease_lost_total",
			Help:      "Cycles aborted because another worker took the cron lease.",
		}),
		now: time.Now,
	}
	reg.MustRegister(m.runs, m.duration, m.rows, m.lastSuccess, m.leaseLost)
	return m
}

// ObserveRun records one job execution. rows counts even when the job
// failed part-way.
func (m *CronJobMetrics) ObserveRun(job string, elapsed time.Duration, rows int64, err error) {
	if m == nil {
		return
	}
	if job == "" {
		job = "unknown"
	}
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if rows > 0 {
		m.rows.WithLabelValues(job).Add(float64(rows))
	}
	if err != nil {
		m.runs.WithLabelValues(job, RunFailed).Inc()
		return
	}
	m.runs.WithLabelValues(job, RunSucceeded).Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(m.now().Unix()))
}

func (m *CronJobMetrics) IncLeaseLost() {
	if m == nil {
		return
	}
	m.leaseLost.Inc()
}
