// Package metrics provides the centralized Prometheus metrics registry for
// the optimization toolchain.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Engine-run durations span minutes to hours.
var runDurationBuckets = []float64{30, 60, 300, 600, 1800, 3600, 7200, 14400}

// Counter metrics
var (
	HyperoptRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "hyperopt_runs_total",
		Help:      "Total number of hyperopt runs by strategy and status",
	}, []string{"strategy", "status"})
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by strategy and status",
	}, []string{"strategy", "status"})
	SessionsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "sessions_started_total",
		Help:      "Total number of batch sessions started",
	})
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_lab",
		Name:      "notifications_total",
		Help:      "Total number of webhook notifications by status",
	}, []string{"status"})
)

// Gauge metrics
var (
	ActiveRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "strategy_lab",
		Name:      "active_runs",
		Help:      "Number of engine invocations currently in flight",
	})
	RealityGapPct = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "strategy_lab",
		Name:      "reality_gap_pct",
		Help:      "Latest reality gap (optimizer minus backtest profit) per strategy",
	}, []string{"strategy"})
)

// Histogram metrics
var (
	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "strategy_lab",
		Name:      "run_duration_seconds",
		Help:      "Duration of engine invocations in seconds by operation",
		Buckets:   runDurationBuckets,
	}, []string{"operation"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(HyperoptRunsTotal)
		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(SessionsStartedTotal)
		registry.MustRegister(NotificationsTotal)

		registry.MustRegister(ActiveRuns)
		registry.MustRegister(RealityGapPct)

		registry.MustRegister(RunDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordHyperoptRun records a completed hyperopt invocation.
func RecordHyperoptRun(strategy, status string, durationSeconds float64) {
	HyperoptRunsTotal.WithLabelValues(strategy, status).Inc()
	RunDuration.WithLabelValues("hyperopt").Observe(durationSeconds)
}

// RecordBacktestRun records a completed backtest invocation.
func RecordBacktestRun(strategy, status string, durationSeconds float64) {
	BacktestRunsTotal.WithLabelValues(strategy, status).Inc()
	RunDuration.WithLabelValues("backtest").Observe(durationSeconds)
}

// RecordSessionStarted records a batch session start.
func RecordSessionStarted() {
	SessionsStartedTotal.Inc()
}

// RecordNotification records a webhook notification attempt.
func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}

// UpdateRealityGap updates the latest reality gap gauge for a strategy.
func UpdateRealityGap(strategy string, gapPct float64) {
	RealityGapPct.WithLabelValues(strategy).Set(gapPct)
}

// RunStarted marks an engine invocation in flight.
func RunStarted() {
	ActiveRuns.Inc()
}

// RunFinished marks an engine invocation complete.
func RunFinished() {
	ActiveRuns.Dec()
}
