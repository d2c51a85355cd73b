package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/strategy-lab/internal/database"
	"github.com/yourusername/strategy-lab/internal/models"
)

func newMockRepos(t *testing.T) (*Repositories, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	repos, err := NewRepositories(database.NewDBFromConn(conn))
	require.NoError(t, err)
	return repos, mock
}

func hyperoptRowColumns() []string {
	return []string{
		"id", "strategy_name", "timestamp", "status",
		"max_open_trades", "timeframe", "stake_amount", "stake_currency",
		"timerange", "pair_whitelist", "exchange_name",
		"hyperopt_function", "epochs", "spaces", "run_number",
		"total_profit_pct", "total_profit_abs", "total_trades", "win_rate",
		"avg_profit_pct", "max_drawdown_pct", "sharpe_ratio", "calmar_ratio",
		"sortino_ratio", "profit_factor", "expectancy",
		"winning_trades", "losing_trades", "draw_trades",
		"config_file_path", "hyperopt_result_file_path",
		"config_json", "hyperopt_json", "raw_output", "parser_version",
		"optimization_duration_seconds", "session_info",
	}
}

func sampleHyperoptRow(id int64, strategy string, profit float64) []driverValue {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []driverValue{
		id, strategy, ts, "completed",
		3, "5m", "100.0", "USDT",
		"20240101-20240601", []byte(`["BTC/USDT","ETH/USDT"]`), "binance",
		"SharpeHyperOptLoss", 500, []byte(`["buy","sell"]`), 1,
		profit, "1530.25", 42, 70.0,
		0.36, 8.2, 1.5, 0.9,
		1.8, 1.4, 0.12,
		29, 9, 4,
		"/data/configs/a_config.json", "/data/hyperopt/a_hyperopt.json",
		[]byte(`{"max_open_trades":3}`), []byte(`{"epochs":500}`), "raw", "v1",
		3600, []byte(`{"session_name":"s1"}`),
	}
}

type driverValue = driver.Value

func TestHyperoptSaveReturnsAssignedID(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("INSERT INTO hyperopt_results").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	result := &models.HyperoptResult{
		StrategyName:     "SMA200Strategy",
		HyperoptFunction: "SharpeHyperOptLoss",
		Epochs:           500,
	}
	result.Timeframe = "5m"

	id, err := repos.Hyperopt.Save(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), result.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHyperoptSaveRejectsInvalidResult(t *testing.T) {
	repos, _ := newMockRepos(t)

	_, err := repos.Hyperopt.Save(context.Background(), &models.HyperoptResult{})
	assert.ErrorIs(t, err, models.ErrStrategyNameRequired)

	_, err = repos.Hyperopt.Save(context.Background(), &models.HyperoptResult{
		StrategyName:     "SMA200Strategy",
		HyperoptFunction: "SharpeHyperOptLoss",
	})
	assert.ErrorIs(t, err, models.ErrEpochsRequired)
}

func TestHyperoptGetByID(t *testing.T) {
	repos, mock := newMockRepos(t)

	rows := sqlmock.NewRows(hyperoptRowColumns()).
		AddRow(sampleHyperoptRow(7, "SMA200Strategy", 15.3)...)
	mock.ExpectQuery("SELECT (.+) FROM hyperopt_results WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	result, err := repos.Hyperopt.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.ID)
	assert.Equal(t, "SMA200Strategy", result.StrategyName)
	assert.Equal(t, 15.3, result.TotalProfitPct)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, result.PairWhitelist)
	assert.Equal(t, []string{"buy", "sell"}, result.Spaces)
	assert.Equal(t, "v1", result.ParserVersion)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHyperoptGetByIDNotFound(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("SELECT (.+) FROM hyperopt_results WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(hyperoptRowColumns()))

	_, err := repos.Hyperopt.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHyperoptListByStrategy(t *testing.T) {
	repos, mock := newMockRepos(t)

	rows := sqlmock.NewRows(hyperoptRowColumns()).
		AddRow(sampleHyperoptRow(2, "SMA200Strategy", 15.3)...).
		AddRow(sampleHyperoptRow(1, "SMA200Strategy", 9.1)...)
	mock.ExpectQuery("SELECT (.+) FROM hyperopt_results WHERE strategy_name").
		WithArgs("SMA200Strategy", 10).
		WillReturnRows(rows)

	results, err := repos.Hyperopt.ListByStrategy(context.Background(), "SMA200Strategy", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), results[0].ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHyperoptGetRawDocument(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("SELECT hyperopt_json FROM hyperopt_results").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"hyperopt_json"}).AddRow([]byte(`{"epochs":500}`)))

	doc, err := repos.Hyperopt.GetRawDocument(context.Background(), 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"epochs":500}`, string(doc))
}

func TestBacktestSaveReturnsAssignedID(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("INSERT INTO backtest_results").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	hyperoptID := int64(42)
	result := &models.BacktestResult{
		StrategyName: "SMA200Strategy",
		HyperoptID:   &hyperoptID,
	}
	result.Timeframe = "5m"

	id, err := repos.Backtest.Save(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBacktestSaveDanglingHyperoptID(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("INSERT INTO backtest_results").
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})

	hyperoptID := int64(9999)
	result := &models.BacktestResult{
		StrategyName: "SMA200Strategy",
		HyperoptID:   &hyperoptID,
	}
	result.Timeframe = "5m"

	_, err := repos.Backtest.Save(context.Background(), result)
	assert.ErrorIs(t, err, models.ErrHyperoptNotFound)
}

func TestBacktestSaveRejectsNonPositiveLink(t *testing.T) {
	repos, _ := newMockRepos(t)

	badID := int64(0)
	result := &models.BacktestResult{
		StrategyName: "SMA200Strategy",
		HyperoptID:   &badID,
	}

	_, err := repos.Backtest.Save(context.Background(), result)
	assert.ErrorIs(t, err, models.ErrInvalidID)
}

func TestBacktestSaveTrades(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectExec("UPDATE backtest_results SET trades_json").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repos.Backtest.SaveTrades(context.Background(), 5, []byte(`[{"pair":"BTC/USDT"}]`))
	require.NoError(t, err)
}

func TestBacktestSaveTradesMissingRow(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectExec("UPDATE backtest_results SET trades_json").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repos.Backtest.SaveTrades(context.Background(), 999, []byte(`[]`))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBacktestGetTrades(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("SELECT trades_json FROM backtest_results").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"trades_json"}).AddRow([]byte(`[{"pair":"BTC/USDT"}]`)))

	trades, err := repos.Backtest.GetTrades(context.Background(), 5)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"pair":"BTC/USDT"}]`, string(trades))
}

func TestNewRepositoriesRequiresDB(t *testing.T) {
	_, err := NewRepositories(nil)
	assert.Error(t, err)
}
