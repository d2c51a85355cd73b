package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// legacyCopyMarker names the one-shot copy from legacy schema generations
// in migrations_applied. Once recorded, Migrate is a no-op.
const legacyCopyMarker = "legacy_copy_v1"

// Legacy table names, oldest generation last. The single wide
// strategy_optimizations table predates the hyperopt_runs/backtest_runs
// pair; when both generations exist, hyperopt_runs wins.
const (
	legacyTableHyperoptRuns = "hyperopt_runs"
	legacyTableBacktestRuns = "backtest_runs"
	legacyTableStrategyOpts = "strategy_optimizations"
)

const migrateHyperoptRunsSQL = `
INSERT INTO hyperopt_results (
	strategy_name, timestamp, max_open_trades, timeframe,
	stake_amount, stake_currency, timerange, pair_whitelist, exchange_name,
	hyperopt_function, epochs, spaces, run_number, total_profit_pct,
	total_profit_abs, total_trades, win_rate, avg_profit_pct,
	max_drawdown_pct, sharpe_ratio, calmar_ratio, sortino_ratio,
	profit_factor, expectancy, winning_trades, losing_trades,
	draw_trades, config_file_path, hyperopt_result_file_path,
	optimization_duration_seconds, status
)
SELECT
	strategy_name, hyperopt_timestamp, max_open_trades, timeframe,
	stake_amount, stake_currency, timerange, pair_whitelist, exchange_name,
	hyperopt_function, epochs, spaces, run_number, total_profit_pct,
	total_profit_abs, total_trades, win_rate, avg_profit_pct,
	max_drawdown_pct, COALESCE(sharpe_ratio, 0), COALESCE(calmar_ratio, 0),
	COALESCE(sortino_ratio, 0), COALESCE(profit_factor, 0), COALESCE(expectancy, 0),
	COALESCE(winning_trades, 0), COALESCE(losing_trades, 0), COALESCE(draw_trades, 0),
	config_file_path, hyperopt_result_file_path,
	optimization_duration_seconds, COALESCE(status, 'completed')
FROM hyperopt_runs`

const migrateBacktestRunsSQL = `
INSERT INTO backtest_results (
	strategy_name, timestamp, max_open_trades, timeframe,
	stake_amount, stake_currency, timerange, pair_whitelist, exchange_name,
	total_profit_pct, total_profit_abs, total_trades, win_rate,
	avg_profit_pct, max_drawdown_pct, max_drawdown_abs,
	sharpe_ratio, calmar_ratio, sortino_ratio, profit_factor, expectancy,
	winning_trades, losing_trades, draw_trades, best_trade_pct,
	worst_trade_pct, avg_trade_duration, config_file_path,
	backtest_result_file_path, backtest_duration_seconds,
	hyperopt_id, status
)
SELECT
	strategy_name, backtest_timestamp, max_open_trades, timeframe,
	stake_amount, stake_currency, timerange, pair_whitelist, exchange_name,
	total_profit_pct, total_profit_abs, total_trades, win_rate,
	avg_profit_pct, max_drawdown_pct, COALESCE(max_drawdown_abs, 0),
	COALESCE(sharpe_ratio, 0), COALESCE(calmar_ratio, 0),
	COALESCE(sortino_ratio, 0), COALESCE(profit_factor, 0), COALESCE(expectancy, 0),
	COALESCE(winning_trades, 0), COALESCE(losing_trades, 0), COALESCE(draw_trades, 0),
	COALESCE(best_trade_pct, 0), COALESCE(worst_trade_pct, 0),
	COALESCE(avg_trade_duration, '0 days'), config_file_path,
	backtest_result_file_path, backtest_duration_seconds,
	hyperopt_id, COALESCE(status, 'completed')
FROM backtest_runs`

const migrateStrategyOptsSQL = `
INSERT INTO hyperopt_results (
	strategy_name, timestamp, max_open_trades, timeframe,
	stake_amount, stake_currency, timerange, pair_whitelist, exchange_name,
	hyperopt_function, epochs, total_profit_pct, total_profit_abs,
	total_trades, win_rate, avg_profit_pct, max_drawdown_pct,
	sharpe_ratio, config_file_path, hyperopt_result_file_path,
	optimization_duration_seconds, run_number, status
)
SELECT
	strategy_name, optimization_timestamp, max_open_trades, timeframe,
	stake_amount, stake_currency, timerange, pair_whitelist, exchange_name,
	hyperopt_function, epochs, total_profit_pct, total_profit_abs,
	total_trades, win_rate, avg_profit_pct, max_drawdown_pct,
	COALESCE(sharpe_ratio, 0), config_file_path, hyperopt_result_file_path,
	optimization_duration_seconds, COALESCE(run_number, 1),
	COALESCE(status, 'completed')
FROM strategy_optimizations`

// MigrationReport summarizes what a Migrate call did.
type MigrationReport struct {
	AlreadyApplied bool
	LegacyTables   []string
	HyperoptRows   int64
	BacktestRows   int64
}

// Migrator copies rows from legacy schema generations into the current
// two-table schema. It never drops legacy tables; CleanupLegacy is the
// separate destructive step.
type Migrator struct {
	db     *DB
	logger *logrus.Logger
}

// NewMigrator creates a migrator over the given connection.
func NewMigrator(db *DB, logger *logrus.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// Applied reports whether the legacy copy has already been recorded.
func (m *Migrator) Applied(ctx context.Context) (bool, error) {
	var applied bool
	err := m.db.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM migrations_applied WHERE name = $1)",
		legacyCopyMarker,
	).Scan(&applied)
	if err != nil {
		return false, fmt.Errorf("failed to check migration marker: %w", err)
	}
	return applied, nil
}

// detectLegacyTables returns the legacy tables present in the public schema.
func (m *Migrator) detectLegacyTables(ctx context.Context) ([]string, error) {
	rows, err := m.db.conn.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_name IN ($1, $2, $3)`,
		legacyTableHyperoptRuns, legacyTableBacktestRuns, legacyTableStrategyOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to detect legacy tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan legacy table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate legacy tables: %w", err)
	}
	return tables, nil
}

// Migrate copies legacy rows into the current tables. The whole copy runs
// in one transaction: any error aborts the migration with no partial state
// committed. A marker row makes re-runs a no-op, and absence of legacy
// tables is success with zero rows copied.
func (m *Migrator) Migrate(ctx context.Context) (*MigrationReport, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if applied {
		m.logger.Info("Legacy migration already applied, skipping")
		return &MigrationReport{AlreadyApplied: true}, nil
	}

	legacyTables, err := m.detectLegacyTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(legacyTables) == 0 {
		m.logger.Info("No legacy schema found, skipping migration")
		return &MigrationReport{}, nil
	}

	m.logger.WithField("tables", legacyTables).Info("Migrating data from legacy schema")

	present := make(map[string]bool, len(legacyTables))
	for _, t := range legacyTables {
		present[t] = true
	}

	report := &MigrationReport{LegacyTables: legacyTables}
	err = m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if present[legacyTableHyperoptRuns] {
			n, err := execCount(ctx, tx, migrateHyperoptRunsSQL)
			if err != nil {
				return fmt.Errorf("failed to migrate hyperopt_runs: %w", err)
			}
			report.HyperoptRows += n
			m.logger.WithField("rows", n).Info("Migrated hyperopt run records")
		}

		if present[legacyTableBacktestRuns] {
			n, err := execCount(ctx, tx, migrateBacktestRunsSQL)
			if err != nil {
				return fmt.Errorf("failed to migrate backtest_runs: %w", err)
			}
			report.BacktestRows += n
			m.logger.WithField("rows", n).Info("Migrated backtest run records")
		}

		if present[legacyTableStrategyOpts] && !present[legacyTableHyperoptRuns] {
			n, err := execCount(ctx, tx, migrateStrategyOptsSQL)
			if err != nil {
				return fmt.Errorf("failed to migrate strategy_optimizations: %w", err)
			}
			report.HyperoptRows += n
			m.logger.WithField("rows", n).Info("Migrated legacy optimization records")
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO migrations_applied (name) VALUES ($1)", legacyCopyMarker,
		); err != nil {
			return fmt.Errorf("failed to record migration marker: %w", err)
		}
		return nil
	})
	if err != nil {
		m.logger.WithError(err).Error("Migration failed, inspect manually")
		return nil, err
	}

	m.logger.Info("Migration completed successfully")
	return report, nil
}

// CleanupLegacy drops the legacy tables after a successful migration.
// Destructive; requires explicit confirmation and a recorded marker.
func (m *Migrator) CleanupLegacy(ctx context.Context, confirm bool) error {
	if !confirm {
		return fmt.Errorf("legacy cleanup requires explicit confirmation")
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("refusing to drop legacy tables before migration has been applied")
	}

	// backtest_runs references hyperopt_runs, drop it first
	drops := []string{
		"DROP TABLE IF EXISTS " + legacyTableBacktestRuns,
		"DROP TABLE IF EXISTS " + legacyTableHyperoptRuns,
		"DROP TABLE IF EXISTS " + legacyTableStrategyOpts,
	}
	for _, stmt := range drops {
		if _, err := m.db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop legacy table: %w", err)
		}
	}

	m.logger.Info("Legacy tables dropped")
	return nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string) (int64, error) {
	res, err := tx.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
