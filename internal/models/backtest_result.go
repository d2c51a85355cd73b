package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BacktestResult represents one validation run of a strategy+configuration
// pair. HyperoptID optionally links the row to the optimization run that
// produced the configuration under test; a backtest may also run standalone
// against a hand-authored configuration.
type BacktestResult struct {
	ID           int64     `db:"id" json:"id"`
	StrategyName string    `db:"strategy_name" json:"strategy_name" validate:"required"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
	Status       RunStatus `db:"status" json:"status"`

	RunConfig

	PerformanceMetrics

	// Extended trade statistics
	MaxDrawdownAbs   decimal.Decimal `db:"max_drawdown_abs" json:"max_drawdown_abs"`
	WinningTrades    int             `db:"winning_trades" json:"winning_trades"`
	LosingTrades     int             `db:"losing_trades" json:"losing_trades"`
	DrawTrades       int             `db:"draw_trades" json:"draw_trades"`
	BestTradePct     float64         `db:"best_trade_pct" json:"best_trade_pct"`
	WorstTradePct    float64         `db:"worst_trade_pct" json:"worst_trade_pct"`
	AvgTradeDuration string          `db:"avg_trade_duration" json:"avg_trade_duration"`

	// Raw artifact references
	ConfigFilePath string          `db:"config_file_path" json:"config_file_path"`
	ResultFilePath string          `db:"backtest_result_file_path" json:"backtest_result_file_path"`
	ConfigJSON     json.RawMessage `db:"config_json" json:"config_json"`
	BacktestJSON   json.RawMessage `db:"backtest_json" json:"backtest_json"`
	RawOutput      string          `db:"raw_output" json:"raw_output"`
	ParserVersion  string          `db:"parser_version" json:"parser_version"`
	TradesJSON     json.RawMessage `db:"trades_json" json:"trades_json"`

	DurationSeconds int             `db:"backtest_duration_seconds" json:"backtest_duration_seconds"`
	HyperoptID      *int64          `db:"hyperopt_id" json:"hyperopt_id"`
	SessionInfo     json.RawMessage `db:"session_info" json:"session_info"`
}

// Validate checks the invariants a row must hold before it may be persisted.
func (r *BacktestResult) Validate() error {
	if r.StrategyName == "" {
		return ErrStrategyNameRequired
	}
	if r.HyperoptID != nil && *r.HyperoptID <= 0 {
		return ErrInvalidID
	}
	return nil
}
