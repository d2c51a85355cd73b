package models

import (
	"encoding/json"
	"time"
)

// HyperoptResult represents one completed hyperparameter-search run for one
// strategy. Rows are written once at run completion and never mutated.
type HyperoptResult struct {
	ID           int64     `db:"id" json:"id"`
	StrategyName string    `db:"strategy_name" json:"strategy_name" validate:"required"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
	Status       RunStatus `db:"status" json:"status"`

	RunConfig

	// Search configuration
	HyperoptFunction string   `db:"hyperopt_function" json:"hyperopt_function"`
	Epochs           int      `db:"epochs" json:"epochs"`
	Spaces           []string `db:"spaces" json:"spaces"`
	RunNumber        int      `db:"run_number" json:"run_number"`

	PerformanceMetrics

	// Trade statistics reported by the optimizer
	WinningTrades int `db:"winning_trades" json:"winning_trades"`
	LosingTrades  int `db:"losing_trades" json:"losing_trades"`
	DrawTrades    int `db:"draw_trades" json:"draw_trades"`

	// Raw artifact references
	ConfigFilePath string          `db:"config_file_path" json:"config_file_path"`
	ResultFilePath string          `db:"hyperopt_result_file_path" json:"hyperopt_result_file_path"`
	ConfigJSON     json.RawMessage `db:"config_json" json:"config_json"`
	HyperoptJSON   json.RawMessage `db:"hyperopt_json" json:"hyperopt_json"`
	RawOutput      string          `db:"raw_output" json:"raw_output"`
	ParserVersion  string          `db:"parser_version" json:"parser_version"`

	DurationSeconds int             `db:"optimization_duration_seconds" json:"optimization_duration_seconds"`
	SessionInfo     json.RawMessage `db:"session_info" json:"session_info"`
}

// Validate checks the invariants a row must hold before it may be persisted.
func (r *HyperoptResult) Validate() error {
	if r.StrategyName == "" {
		return ErrStrategyNameRequired
	}
	if r.HyperoptFunction != "" && r.Epochs <= 0 {
		return ErrEpochsRequired
	}
	return nil
}
