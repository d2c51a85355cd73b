package database

import (
	"context"
	"fmt"
)

// createHyperoptResultsTable holds one optimization run per row.
const createHyperoptResultsTable = `
CREATE TABLE IF NOT EXISTS hyperopt_results (
	id BIGSERIAL PRIMARY KEY,

	strategy_name VARCHAR(100) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	status VARCHAR(20) NOT NULL DEFAULT 'completed',

	max_open_trades INTEGER,
	timeframe VARCHAR(10) NOT NULL,
	stake_amount NUMERIC(20, 8),
	stake_currency VARCHAR(10),
	timerange VARCHAR(50),
	pair_whitelist JSONB,
	exchange_name VARCHAR(50),

	hyperopt_function VARCHAR(100),
	epochs INTEGER,
	spaces JSONB,
	run_number INTEGER NOT NULL DEFAULT 1,

	total_profit_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_profit_abs NUMERIC(20, 8) NOT NULL DEFAULT 0,
	total_trades INTEGER NOT NULL DEFAULT 0,
	win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_profit_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_drawdown_pct DOUBLE PRECISION NOT NULL DEFAULT 0,

	sharpe_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	calmar_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	sortino_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	profit_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
	expectancy DOUBLE PRECISION NOT NULL DEFAULT 0,

	winning_trades INTEGER NOT NULL DEFAULT 0,
	losing_trades INTEGER NOT NULL DEFAULT 0,
	draw_trades INTEGER NOT NULL DEFAULT 0,

	config_file_path VARCHAR(255),
	hyperopt_result_file_path VARCHAR(255),
	config_json JSONB,
	hyperopt_json JSONB,
	raw_output TEXT,
	parser_version VARCHAR(10),

	optimization_duration_seconds INTEGER,
	session_info JSONB
)`

// createBacktestResultsTable holds one validation run per row, optionally
// linked to the optimization run that produced its configuration.
const createBacktestResultsTable = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id BIGSERIAL PRIMARY KEY,

	strategy_name VARCHAR(100) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	status VARCHAR(20) NOT NULL DEFAULT 'completed',

	max_open_trades INTEGER,
	timeframe VARCHAR(10) NOT NULL,
	stake_amount NUMERIC(20, 8),
	stake_currency VARCHAR(10),
	timerange VARCHAR(50),
	pair_whitelist JSONB,
	exchange_name VARCHAR(50),

	total_profit_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_profit_abs NUMERIC(20, 8) NOT NULL DEFAULT 0,
	total_trades INTEGER NOT NULL DEFAULT 0,
	win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_profit_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_drawdown_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_drawdown_abs NUMERIC(20, 8) NOT NULL DEFAULT 0,

	sharpe_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	calmar_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	sortino_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	profit_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
	expectancy DOUBLE PRECISION NOT NULL DEFAULT 0,

	winning_trades INTEGER NOT NULL DEFAULT 0,
	losing_trades INTEGER NOT NULL DEFAULT 0,
	draw_trades INTEGER NOT NULL DEFAULT 0,
	best_trade_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	worst_trade_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_trade_duration VARCHAR(50) NOT NULL DEFAULT '0 days',

	config_file_path VARCHAR(255),
	backtest_result_file_path VARCHAR(255),
	config_json JSONB,
	backtest_json JSONB,
	raw_output TEXT,
	parser_version VARCHAR(10),
	trades_json JSONB,

	backtest_duration_seconds INTEGER,
	hyperopt_id BIGINT REFERENCES hyperopt_results(id),
	session_info JSONB
)`

// createMigrationsAppliedTable records which one-shot migrations have run,
// so re-running them is a no-op instead of a row duplication.
const createMigrationsAppliedTable = `
CREATE TABLE IF NOT EXISTS migrations_applied (
	name VARCHAR(100) PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var schemaIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_hyperopt_strategy_profit ON hyperopt_results(strategy_name, total_profit_pct)",
	"CREATE INDEX IF NOT EXISTS idx_hyperopt_timeframe_profit ON hyperopt_results(timeframe, total_profit_pct)",
	"CREATE INDEX IF NOT EXISTS idx_hyperopt_timestamp ON hyperopt_results(timestamp)",
	"CREATE INDEX IF NOT EXISTS idx_hyperopt_status ON hyperopt_results(status)",

	"CREATE INDEX IF NOT EXISTS idx_backtest_strategy_profit ON backtest_results(strategy_name, total_profit_pct)",
	"CREATE INDEX IF NOT EXISTS idx_backtest_timeframe_profit ON backtest_results(timeframe, total_profit_pct)",
	"CREATE INDEX IF NOT EXISTS idx_backtest_timestamp ON backtest_results(timestamp)",
	"CREATE INDEX IF NOT EXISTS idx_backtest_hyperopt ON backtest_results(hyperopt_id)",
	"CREATE INDEX IF NOT EXISTS idx_backtest_status ON backtest_results(status)",
}

// EnsureSchema creates the current-generation tables and indexes if they do
// not already exist. Safe to run on every startup.
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		createHyperoptResultsTable,
		createBacktestResultsTable,
		createMigrationsAppliedTable,
	}
	statements = append(statements, schemaIndexes...)

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
