package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/strategy-lab/internal/database"
	"github.com/yourusername/strategy-lab/internal/models"
)

const errScanHyperoptResult = "failed to scan hyperopt result: %w"

const hyperoptSelectColumns = `
	id, strategy_name, timestamp, status,
	COALESCE(max_open_trades, 0), timeframe, COALESCE(stake_amount, 0),
	COALESCE(stake_currency, ''), COALESCE(timerange, ''), pair_whitelist,
	COALESCE(exchange_name, ''),
	COALESCE(hyperopt_function, ''), COALESCE(epochs, 0), spaces, run_number,
	total_profit_pct, total_profit_abs, total_trades, win_rate,
	avg_profit_pct, max_drawdown_pct, sharpe_ratio, calmar_ratio,
	sortino_ratio, profit_factor, expectancy,
	winning_trades, losing_trades, draw_trades,
	COALESCE(config_file_path, ''), COALESCE(hyperopt_result_file_path, ''),
	config_json, hyperopt_json, COALESCE(raw_output, ''),
	COALESCE(parser_version, ''), COALESCE(optimization_duration_seconds, 0),
	session_info`

// PostgresHyperoptRepository implements HyperoptRepository for PostgreSQL
type PostgresHyperoptRepository struct {
	db *database.DB
}

// NewPostgresHyperoptRepository creates a new hyperopt result repository
func NewPostgresHyperoptRepository(db *database.DB) HyperoptRepository {
	return &PostgresHyperoptRepository{db: db}
}

// Save inserts an optimization run and returns its assigned identity.
// The insert is a single statement: either the full row commits or nothing.
func (r *PostgresHyperoptRepository) Save(ctx context.Context, result *models.HyperoptResult) (int64, error) {
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
	spaces, err := marshalStringSlice(result.Spaces)
	if err != nil {
		return 0, fmt.Errorf("failed to encode spaces: %w", err)
	}

	query := `
		INSERT INTO hyperopt_results (
			strategy_name, timestamp, status,
			max_open_trades, timeframe, stake_amount, stake_currency,
			timerange, pair_whitelist, exchange_name,
			hyperopt_function, epochs, spaces, run_number,
			total_profit_pct, total_profit_abs, total_trades, win_rate,
			avg_profit_pct, max_drawdown_pct, sharpe_ratio, calmar_ratio,
			sortino_ratio, profit_factor, expectancy,
			winning_trades, losing_trades, draw_trades,
			config_file_path, hyperopt_result_file_path,
			config_json, hyperopt_json, raw_output, parser_version,
			optimization_duration_seconds, session_info
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,
			$35,$36
		) RETURNING id
	`

	var id int64
	err = r.db.Conn().QueryRowContext(ctx, query,
		result.StrategyName, result.Timestamp, result.Status,
		result.MaxOpenTrades, result.Timeframe, result.StakeAmount, result.StakeCurrency,
		result.Timerange, pairWhitelist, result.ExchangeName,
		result.HyperoptFunction, result.Epochs, spaces, result.RunNumber,
		result.TotalProfitPct, result.TotalProfitAbs, result.TotalTrades, result.WinRate,
		result.AvgProfitPct, result.MaxDrawdownPct, result.SharpeRatio, result.CalmarRatio,
		result.SortinoRatio, result.ProfitFactor, result.Expectancy,
		result.WinningTrades, result.LosingTrades, result.DrawTrades,
		result.ConfigFilePath, result.ResultFilePath,
		nullableJSON(result.ConfigJSON), nullableJSON(result.HyperoptJSON),
		result.RawOutput, result.ParserVersion,
		result.DurationSeconds, nullableJSON(result.SessionInfo),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save hyperopt result: %w", err)
	}

	result.ID = id
	return id, nil
}

// GetByID retrieves one optimization run
func (r *PostgresHyperoptRepository) GetByID(ctx context.Context, id int64) (*models.HyperoptResult, error) {
	query := "SELECT " + hyperoptSelectColumns + " FROM hyperopt_results WHERE id = $1"

	result, err := scanHyperoptRow(r.db.Conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return result, nil
}

// ListByStrategy retrieves optimization runs for a strategy, newest first
func (r *PostgresHyperoptRepository) ListByStrategy(ctx context.Context, strategyName string, limit int) ([]*models.HyperoptResult, error) {
	query := "SELECT " + hyperoptSelectColumns + `
		FROM hyperopt_results WHERE strategy_name = $1
		ORDER BY timestamp DESC LIMIT $2`

	rows, err := r.db.Conn().QueryContext(ctx, query, strategyName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hyperopt results: %w", err)
	}
	defer rows.Close()

	return collectHyperoptRows(rows)
}

// ListRecent retrieves the most recent optimization runs across strategies
func (r *PostgresHyperoptRepository) ListRecent(ctx context.Context, limit int) ([]*models.HyperoptResult, error) {
	query := "SELECT " + hyperoptSelectColumns + `
		FROM hyperopt_results ORDER BY timestamp DESC LIMIT $1`

	rows, err := r.db.Conn().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent hyperopt results: %w", err)
	}
	defer rows.Close()

	return collectHyperoptRows(rows)
}

// GetRawDocument retrieves the embedded full optimizer result document
func (r *PostgresHyperoptRepository) GetRawDocument(ctx context.Context, id int64) (json.RawMessage, error) {
	var doc []byte
	err := r.db.Conn().QueryRowContext(ctx,
		"SELECT hyperopt_json FROM hyperopt_results WHERE id = $1", id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query hyperopt document: %w", err)
	}
	return json.RawMessage(doc), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHyperoptRow(row rowScanner) (*models.HyperoptResult, error) {
	result := &models.HyperoptResult{}
	var pairWhitelist, spaces []byte

	err := row.Scan(
		&result.ID, &result.StrategyName, &result.Timestamp, &result.Status,
		&result.MaxOpenTrades, &result.Timeframe, &result.StakeAmount,
		&result.StakeCurrency, &result.Timerange, &pairWhitelist,
		&result.ExchangeName,
		&result.HyperoptFunction, &result.Epochs, &spaces, &result.RunNumber,
		&result.TotalProfitPct, &result.TotalProfitAbs, &result.TotalTrades, &result.WinRate,
		&result.AvgProfitPct, &result.MaxDrawdownPct, &result.SharpeRatio, &result.CalmarRatio,
		&result.SortinoRatio, &result.ProfitFactor, &result.Expectancy,
		&result.WinningTrades, &result.LosingTrades, &result.DrawTrades,
		&result.ConfigFilePath, &result.ResultFilePath,
		&result.ConfigJSON, &result.HyperoptJSON, &result.RawOutput,
		&result.ParserVersion, &result.DurationSeconds,
		&result.SessionInfo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf(errScanHyperoptResult, err)
	}

	if result.PairWhitelist, err = unmarshalStringSlice(pairWhitelist); err != nil {
		return nil, fmt.Errorf(errScanHyperoptResult, err)
	}
	if result.Spaces, err = unmarshalStringSlice(spaces); err != nil {
		return nil, fmt.Errorf(errScanHyperoptResult, err)
	}
	return result, nil
}

func collectHyperoptRows(rows *sql.Rows) ([]*models.HyperoptResult, error) {
	var results []*models.HyperoptResult
	for rows.Next() {
		result, err := scanHyperoptRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func marshalStringSlice(values []string) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

func unmarshalStringSlice(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// nullableJSON maps an empty document to NULL instead of an invalid empty
// JSONB value.
func nullableJSON(doc json.RawMessage) interface{} {
	if len(doc) == 0 {
		return nil
	}
	return []byte(doc)
}
