package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal     *prometheus.CounterVec
	actionsTotal  *prometheus.CounterVec
	warningsTotal prometheus.Counter
	runDuration   prometheus.Histogram

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// SyncMetrics provides methods to record reconciliation metrics.
type SyncMetrics struct{}

// NewSyncMetrics creates a new SyncMetrics instance.
// Metrics are lazily registered on first use.
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{}
}

// InitMetrics initializes all Prometheus metrics.
// This should be called once at startup if Prometheus metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultmirror_runs_total",
				Help: "Total number of reconciliation passes by final status",
			},
			[]string{"status"},
		)

		actionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultmirror_secret_actions_total",
				Help: "Total number of per-secret actions by type",
			},
			[]string{"cluster", "action"},
		)

		warningsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultmirror_parse_warnings_total",
				Help: "Total number of parse warnings across all passes",
			},
		)

		runDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vaultmirror_run_duration_seconds",
				Help:    "Duration of reconciliation passes in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		metricsRegistered = true
	})
}

// RecordRun records a completed pass with its duration.
func (m *SyncMetrics) RecordRun(status string, duration time.Duration) {
	if !metricsRegistered || runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(duration.Seconds())
}

// RecordAction records one per-secret action.
func (m *SyncMetrics) RecordAction(cluster, action string) {
	if !metricsRegistered || actionsTotal == nil {
		return
	}
	actionsTotal.WithLabelValues(cluster, action).Inc()
}

// RecordWarnings adds n parse warnings.
func (m *SyncMetrics) RecordWarnings(n int) {
	if !metricsRegistered || warningsTotal == nil || n <= 0 {
		return
	}
	warningsTotal.Add(float64(n))
}
