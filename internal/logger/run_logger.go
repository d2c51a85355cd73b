// Package logger provides run-lifecycle logging for engine executions.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// RunLogger provides dedicated logging for optimization and backtest runs.
type RunLogger struct {
	*logrus.Entry
}

// NewRunLogger creates a new run logger.
func NewRunLogger(baseLogger *logrus.Logger) *RunLogger {
	return &RunLogger{
		Entry: baseLogger.WithField("component", "runner"),
	}
}

// LogRunStarted logs the start of an engine invocation.
func (rl *RunLogger) LogRunStarted(runType, strategyName, timeframe string, runNumber int) {
	rl.WithFields(logrus.Fields{
		"run_type":      runType,
		"strategy_name": strategyName,
		"timeframe":     timeframe,
		"run_number":    runNumber,
	}).Info("Engine run started")
}

// LogRunCompleted logs a finished engine invocation with its parsed headline metrics.
func (rl *RunLogger) LogRunCompleted(runType, strategyName string, profitPct float64, totalTrades int, duration time.Duration) {
	rl.WithFields(logrus.Fields{
		"run_type":         runType,
		"strategy_name":    strategyName,
		"total_profit_pct": profitPct,
		"total_trades":     totalTrades,
		"duration_seconds": int(duration.Seconds()),
	}).Info("Engine run completed")
}

// LogRunFailed logs a failed engine invocation.
func (rl *RunLogger) LogRunFailed(runType, strategyName string, exitCode int, err error) {
	rl.WithFields(logrus.Fields{
		"run_type":      runType,
		"strategy_name": strategyName,
		"exit_code":     exitCode,
		"error":         err,
	}).Error("Engine run failed")
}

// LogRealityGap logs a computed optimizer-vs-validation gap for a linked pair.
func (rl *RunLogger) LogRealityGap(strategyName string, hyperoptID, backtestID int64, gapPct float64, overfit bool) {
	rl.WithFields(logrus.Fields{
		"strategy_name":   strategyName,
		"hyperopt_id":     hyperoptID,
		"backtest_id":     backtestID,
		"reality_gap_pct": gapPct,
		"overfit_warning": overfit,
	}).Info("Reality gap computed")
}

// LogSessionUpdated logs a session snapshot after a run outcome is recorded.
func (rl *RunLogger) LogSessionUpdated(sessionName string, total, succeeded, failed, durationSeconds int) {
	rl.WithFields(logrus.Fields{
		"session_name":     sessionName,
		"total":            total,
		"succeeded":        succeeded,
		"failed":           failed,
		"duration_seconds": durationSeconds,
	}).Info("Session updated")
}
