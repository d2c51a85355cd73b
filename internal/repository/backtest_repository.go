package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yourusername/strategy-lab/internal/database"
	"github.com/yourusername/strategy-lab/internal/models"
)

const errScanBacktestResult = "failed to scan backtest result: %w"

// pgForeignKeyViolation is the PostgreSQL error code for a dangling
// hyperopt_id reference.
const pgForeignKeyViolation = "23503"

const backtestSelectColumns = `
	id, strategy_name, timestamp, status,
	COALESCE(max_open_trades, 0), timeframe, COALESCE(stake_amount, 0),
	COALESCE(stake_currency, ''), COALESCE(timerange, ''), pair_whitelist,
	COALESCE(exchange_name, ''),
	total_profit_pct, total_profit_abs, total_trades, win_rate,
	avg_profit_pct, max_drawdown_pct, max_drawdown_abs,
	sharpe_ratio, calmar_ratio, sortino_ratio, profit_factor, expectancy,
	winning_trades, losing_trades, draw_trades,
	best_trade_pct, worst_trade_pct, avg_trade_duration,
	COALESCE(config_file_path, ''), COALESCE(backtest_result_file_path, ''),
	config_json, backtest_json, COALESCE(raw_output, ''),
	COALESCE(parser_version, ''), trades_json,
	COALESCE(backtest_duration_seconds, 0), hyperopt_id, session_info`

// PostgresBacktestRepository implements BacktestRepository for PostgreSQL
type PostgresBacktestRepository struct {
	db *database.DB
}

// NewPostgresBacktestRepository creates a new backtest result repository
func NewPostgresBacktestRepository(db *database.DB) BacktestRepository {
	return &PostgresBacktestRepository{db: db}
}

// Save inserts a validation run and returns its assigned identity. A
// dangling hyperopt_id surfaces as models.ErrHyperoptNotFound.
func (r *PostgresBacktestRepository) Save(ctx context.Context, result *models.BacktestResult) (int64, error) {
	if err := result.Validate(); err != nil {
		return 0, err
	}

	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	if result.Status == "" {
		result.Status = models.RunStatusCompleted
	}

	pairWhitelist, err := marshalStringSlice(result.PairWhitelist)
	if err != nil {
		return 0, fmt.Errorf("failed to encode pair whitelist: %w", err)
	}

	query := `
		INSERT INTO backtest_results (
			strategy_name, timestamp, status,
			max_open_trades, timeframe, stake_amount, stake_currency,
			timerange, pair_whitelist, exchange_name,
			total_profit_pct, total_profit_abs, total_trades, win_rate,
			avg_profit_pct, max_drawdown_pct, max_drawdown_abs,
			sharpe_ratio, calmar_ratio, sortino_ratio, profit_factor, expectancy,
			winning_trades, losing_trades, draw_trades,
			best_trade_pct, worst_trade_pct, avg_trade_duration,
			config_file_path, backtest_result_file_path,
			config_json, backtest_json, raw_output, parser_version, trades_json,
			backtest_duration_seconds, hyperopt_id, session_info
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,
			$35,$36,$37,$38
		) RETURNING id
	`

	var id int64
	err = r.db.Conn().QueryRowContext(ctx, query,
		result.StrategyName, result.Timestamp, result.Status,
		result.MaxOpenTrades, result.Timeframe, result.StakeAmount, result.StakeCurrency,
		result.Timerange, pairWhitelist, result.ExchangeName,
		result.TotalProfitPct, result.TotalProfitAbs, result.TotalTrades, result.WinRate,
		result.AvgProfitPct, result.MaxDrawdownPct, result.MaxDrawdownAbs,
		result.SharpeRatio, result.CalmarRatio, result.SortinoRatio, result.ProfitFactor, result.Expectancy,
		result.WinningTrades, result.LosingTrades, result.DrawTrades,
		result.BestTradePct, result.WorstTradePct, result.AvgTradeDuration,
		result.ConfigFilePath, result.ResultFilePath,
		nullableJSON(result.ConfigJSON), nullableJSON(result.BacktestJSON),
		result.RawOutput, result.ParserVersion, nullableJSON(result.TradesJSON),
		result.DurationSeconds, result.HyperoptID, nullableJSON(result.SessionInfo),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return 0, models.ErrHyperoptNotFound
		}
		return 0, fmt.Errorf("failed to save backtest result: %w", err)
	}

	result.ID = id
	return id, nil
}

// GetByID retrieves one validation run
func (r *PostgresBacktestRepository) GetByID(ctx context.Context, id int64) (*models.BacktestResult, error) {
	query := "SELECT " + backtestSelectColumns + " FROM backtest_results WHERE id = $1"

	result, err := scanBacktestRow(r.db.Conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return result, nil
}

// ListByStrategy retrieves validation runs for a strategy, newest first
func (r *PostgresBacktestRepository) ListByStrategy(ctx context.Context, strategyName string, limit int) ([]*models.BacktestResult, error) {
	query := "SELECT " + backtestSelectColumns + `
		FROM backtest_results WHERE strategy_name = $1
		ORDER BY timestamp DESC LIMIT $2`

	rows, err := r.db.Conn().QueryContext(ctx, query, strategyName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w", err)
	}
	defer rows.Close()

	return collectBacktestRows(rows)
}

// ListRecent retrieves the most recent validation runs across strategies
func (r *PostgresBacktestRepository) ListRecent(ctx context.Context, limit int) ([]*models.BacktestResult, error) {
	query := "SELECT " + backtestSelectColumns + `
		FROM backtest_results ORDER BY timestamp DESC LIMIT $1`

	rows, err := r.db.Conn().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent backtest results: %w", err)
	}
	defer rows.Close()

	return collectBacktestRows(rows)
}

// ListByHyperoptID retrieves the validation runs linked to one optimization run
func (r *PostgresBacktestRepository) ListByHyperoptID(ctx context.Context, hyperoptID int64) ([]*models.BacktestResult, error) {
	query := "SELECT " + backtestSelectColumns + `
		FROM backtest_results WHERE hyperopt_id = $1
		ORDER BY timestamp DESC`

	rows, err := r.db.Conn().QueryContext(ctx, query, hyperoptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked backtest results: %w", err)
	}
	defer rows.Close()

	return collectBacktestRows(rows)
}

// SaveTrades attaches the individual-trade document to an existing row
func (r *PostgresBacktestRepository) SaveTrades(ctx context.Context, id int64, trades json.RawMessage) error {
	res, err := r.db.Conn().ExecContext(ctx,
		"UPDATE backtest_results SET trades_json = $1 WHERE id = $2",
		nullableJSON(trades), id,
	)
	if err != nil {
		return fmt.Errorf("failed to save backtest trades: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetTrades retrieves the individual-trade document of a row
func (r *PostgresBacktestRepository) GetTrades(ctx context.Context, id int64) (json.RawMessage, error) {
	var doc []byte
	err := r.db.Conn().QueryRowContext(ctx,
		"SELECT trades_json FROM backtest_results WHERE id = $1", id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query backtest trades: %w", err)
	}
	return json.RawMessage(doc), nil
}

func scanBacktestRow(row rowScanner) (*models.BacktestResult, error) {
	result := &models.BacktestResult{}
	var pairWhitelist []byte
	var hyperoptID sql.NullInt64

	err := row.Scan(
		&result.ID, &result.StrategyName, &result.Timestamp, &result.Status,
		&result.MaxOpenTrades, &result.Timeframe, &result.StakeAmount,
		&result.StakeCurrency, &result.Timerange, &pairWhitelist,
		&result.ExchangeName,
		&result.TotalProfitPct, &result.TotalProfitAbs, &result.TotalTrades, &result.WinRate,
		&result.AvgProfitPct, &result.MaxDrawdownPct, &result.MaxDrawdownAbs,
		&result.SharpeRatio, &result.CalmarRatio, &result.SortinoRatio,
		&result.ProfitFactor, &result.Expectancy,
		&result.WinningTrades, &result.LosingTrades, &result.DrawTrades,
		&result.BestTradePct, &result.WorstTradePct, &result.AvgTradeDuration,
		&result.ConfigFilePath, &result.ResultFilePath,
		&result.ConfigJSON, &result.BacktestJSON, &result.RawOutput,
		&result.ParserVersion, &result.TradesJSON,
		&result.DurationSeconds, &hyperoptID, &result.SessionInfo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf(errScanBacktestResult, err)
	}

	if hyperoptID.Valid {
		result.HyperoptID = &hyperoptID.Int64
	}
	if result.PairWhitelist, err = unmarshalStringSlice(pairWhitelist); err != nil {
		return nil, fmt.Errorf(errScanBacktestResult, err)
	}
	return result, nil
}

func collectBacktestRows(rows *sql.Rows) ([]*models.BacktestResult, error) {
	var results []*models.BacktestResult
	for rows.Next() {
		result, err := scanBacktestRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
