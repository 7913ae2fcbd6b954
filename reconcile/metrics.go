package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for reconciliation runs.
type Metrics struct {
	RecordsTotal *prometheus.CounterVec
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
}

// NewMetrics constructs the run collectors and registers them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricesync_records_total",
			Help: "Reconciled local records by outcome.",
		},
		[]string{"outcome"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricesync_runs_total",
			Help: "Completed reconciliation runs by result.",
		},
		[]string{"result"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricesync_run_duration_seconds",
			Help:    "End-to-end duration of reconciliation runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	if reg != nil {
		reg.MustRegister(records, runs, runDuration)
	}

	return &Metrics{
		RecordsTotal: records,
		RunsTotal:    runs,
		RunDuration:  runDuration,
	}
}

// IncRecord counts one record outcome.
func (m *Metrics) IncRecord(outcome string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records one completed run.
func (m *Metrics) ObserveRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(d.Seconds())
}
