package models

import (
	"github.com/shopspring/decimal"
)

// RunStatus represents the lifecycle status of a run
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusRunning   RunStatus = "running"
)

// RunConfig is the trading configuration snapshot captured with every run
type RunConfig struct {
	MaxOpenTrades int             `db:"max_open_trades" json:"max_open_trades"`
	Timeframe     string          `db:"timeframe" json:"timeframe" validate:"required"`
	StakeAmount   decimal.Decimal `db:"stake_amount" json:"stake_amount"`
	StakeCurrency string          `db:"stake_currency" json:"stake_currency"`
	Timerange     string          `db:"timerange" json:"timerange"`
	PairWhitelist []string        `db:"pair_whitelist" json:"pair_whitelist"`
	ExchangeName  string          `db:"exchange_name" json:"exchange_name"`
}

// PerformanceMetrics is the metric set shared by optimization and backtest runs.
// Metrics the engine did not report are zero, never null; aggregate queries
// depend on numeric presence.
type PerformanceMetrics struct {
	TotalProfitPct float64         `db:"total_profit_pct" json:"total_profit_pct"`
	TotalProfitAbs decimal.Decimal `db:"total_profit_abs" json:"total_profit_abs"`
	TotalTrades    int             `db:"total_trades" json:"total_trades"`
	WinRate        float64         `db:"win_rate" json:"win_rate"`
	AvgProfitPct   float64         `db:"avg_profit_pct" json:"avg_profit_pct"`
	MaxDrawdownPct float64         `db:"max_drawdown_pct" json:"max_drawdown_pct"`
	SharpeRatio    float64         `db:"sharpe_ratio" json:"sharpe_ratio"`
	CalmarRatio    float64         `db:"calmar_ratio" json:"calmar_ratio"`
	SortinoRatio   float64         `db:"sortino_ratio" json:"sortino_ratio"`
	ProfitFactor   float64         `db:"profit_factor" json:"profit_factor"`
	Expectancy     float64         `db:"expectancy" json:"expectancy"`
}

// RealityGap returns optimizer profit minus validation profit for a linked
// pair. Positive means the optimizer overstated performance (overfitting).
func RealityGap(hyperoptProfitPct, backtestProfitPct float64) float64 {
	return hyperoptProfitPct - backtestProfitPct
}

// OverfitThresholdPct is the gap magnitude above which a linked pair is
// reported as a potential overfit.
const OverfitThresholdPct = 5.0

// IsOverfit reports whether a gap value crosses the warning threshold.
func IsOverfit(gapPct float64) bool {
	return gapPct > OverfitThresholdPct
}
