// Package analytics implements the read-only reconciliation views over the
// two result tables: best-of rankings, reality-gap comparison, per-strategy
// timelines, and aggregate statistics. Nothing here mutates state.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/artifacts"
	"github.com/yourusername/strategy-lab/internal/database"
	"github.com/yourusername/strategy-lab/internal/models"
)

const (
	statsCacheKey = "stats_summary"
	statsCacheTTL = 30 * time.Second

	defaultLimit = 10
)

// Filter narrows a ranking query.
type Filter struct {
	Limit     int
	Timeframe string
	MinTrades int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return defaultLimit
	}
	return f.Limit
}

// RankedRun is one row of a best-of ranking.
type RankedRun struct {
	ID             int64
	StrategyName   string
	Timestamp      time.Time
	Timeframe      string
	TotalProfitPct float64
	TotalTrades    int
	WinRate        float64
	MaxDrawdownPct float64
	SharpeRatio    float64
	ConfigFilePath string
}

// GapRow is one row of the reality-gap comparison. Backtest fields are nil
// for optimization runs with no linked validation run; such rows carry no
// gap and are excluded from averaged statistics.
type GapRow struct {
	HyperoptID        int64
	StrategyName      string
	HyperoptProfit    float64
	HyperoptTrades    int
	HyperoptWinRate   float64
	HyperoptDrawdown  float64
	HyperoptSharpe    float64
	HyperoptTimestamp time.Time

	BacktestID        *int64
	BacktestProfit    *float64
	BacktestTrades    *int
	BacktestWinRate   *float64
	BacktestDrawdown  *float64
	BacktestSharpe    *float64
	BacktestTimestamp *time.Time

	RealityGapPct *float64
}

// Overfit reports whether the row's gap crosses the warning threshold.
func (g *GapRow) Overfit() bool {
	return g.RealityGapPct != nil && models.IsOverfit(*g.RealityGapPct)
}

// TimelineEvent is one run of either type in a strategy's history.
type TimelineEvent struct {
	Type           string
	ID             int64
	Timestamp      time.Time
	TotalProfitPct float64
	TotalTrades    int
	SharpeRatio    float64
	RunNumber      int
	Epochs         int
	Details        string
}

// Event type tags in a timeline.
const (
	EventHyperopt = "hyperopt"
	EventBacktest = "backtest"
)

// TableStats aggregates one result table.
type TableStats struct {
	Total            int
	UniqueStrategies int
	AvgProfitPct     *float64
	MaxProfitPct     *float64
	MinProfitPct     *float64
}

// StatsSummary is the whole-store aggregate view.
type StatsSummary struct {
	Hyperopt      TableStats
	Backtest      TableStats
	LinkedRows    int
	AvgRealityGap *float64
	ComparedPairs int
}

// Engine answers reconciliation queries. Safe for concurrent use.
type Engine struct {
	db     *database.DB
	store  *artifacts.Store
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewEngine creates an analytics engine over the given connection.
func NewEngine(db *database.DB, store *artifacts.Store, logger *logrus.Logger) *Engine {
	return &Engine{
		db:     db,
		store:  store,
		cache:  cache.New(statsCacheTTL, time.Minute),
		logger: logger,
	}
}

const rankedRunColumns = `
	id, strategy_name, timestamp, timeframe,
	total_profit_pct, total_trades, win_rate,
	max_drawdown_pct, sharpe_ratio, COALESCE(config_file_path, '')`

// TopHyperopt ranks completed optimization runs by profit. Ties break on
// strategy name ascending so repeated calls return identical orderings.
func (e *Engine) TopHyperopt(ctx context.Context, filter Filter) ([]*RankedRun, error) {
	return e.topRuns(ctx, "hyperopt_results", filter)
}

// TopBacktest ranks completed validation runs by profit.
func (e *Engine) TopBacktest(ctx context.Context, filter Filter) ([]*RankedRun, error) {
	return e.topRuns(ctx, "backtest_results", filter)
}

func (e *Engine) topRuns(ctx context.Context, table string, filter Filter) ([]*RankedRun, error) {
	query := "SELECT " + rankedRunColumns + " FROM " + table + `
		WHERE status = 'completed' AND total_trades >= $1`
	args := []interface{}{filter.MinTrades}

	if filter.Timeframe != "" {
		query += fmt.Sprintf(" AND timeframe = $%d", len(args)+1)
		args = append(args, filter.Timeframe)
	}
	query += fmt.Sprintf(" ORDER BY total_profit_pct DESC, strategy_name ASC LIMIT $%d", len(args)+1)
	args = append(args, filter.limit())

	rows, err := e.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top runs: %w", err)
	}
	defer rows.Close()

	var results []*RankedRun
	for rows.Next() {
		run := &RankedRun{}
		if err := rows.Scan(
			&run.ID, &run.StrategyName, &run.Timestamp, &run.Timeframe,
			&run.TotalProfitPct, &run.TotalTrades, &run.WinRate,
			&run.MaxDrawdownPct, &run.SharpeRatio, &run.ConfigFilePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ranked run: %w", err)
		}
		results = append(results, run)
	}
	return results, rows.Err()
}

// GapComparison joins optimization runs to their linked validation runs and
// computes the reality gap (optimizer profit minus backtest profit) per
// linked pair. Unlinked optimization runs are included with nil backtest
// fields so pending validations stay visible; rows order by absolute gap
// descending with gapless rows last.
func (e *Engine) GapComparison(ctx context.Context, strategyName string) ([]*GapRow, error) {
	query := `
		SELECT
			h.id, h.strategy_name,
			h.total_profit_pct, h.total_trades, h.win_rate,
			h.max_drawdown_pct, h.sharpe_ratio, h.timestamp,
			b.id, b.total_profit_pct, b.total_trades, b.win_rate,
			b.max_drawdown_pct, b.sharpe_ratio, b.timestamp,
			h.total_profit_pct - b.total_profit_pct
		FROM hyperopt_results h
		LEFT JOIN backtest_results b ON h.id = b.hyperopt_id AND b.status = 'completed'
		WHERE h.status = 'completed'`
	args := []interface{}{}

	if strategyName != "" {
		query += " AND h.strategy_name = $1"
		args = append(args, strategyName)
	}
	query += " ORDER BY ABS(h.total_profit_pct - b.total_profit_pct) DESC NULLS LAST, h.timestamp DESC"

	rows, err := e.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query gap comparison: %w", err)
	}
	defer rows.Close()

	var results []*GapRow
	for rows.Next() {
		row := &GapRow{}
		var (
			backtestID        sql.NullInt64
			backtestProfit    sql.NullFloat64
			backtestTrades    sql.NullInt64
			backtestWinRate   sql.NullFloat64
			backtestDrawdown  sql.NullFloat64
			backtestSharpe    sql.NullFloat64
			backtestTimestamp sql.NullTime
			gap               sql.NullFloat64
		)
		if err := rows.Scan(
			&row.HyperoptID, &row.StrategyName,
			&row.HyperoptProfit, &row.HyperoptTrades, &row.HyperoptWinRate,
			&row.HyperoptDrawdown, &row.HyperoptSharpe, &row.HyperoptTimestamp,
			&backtestID, &backtestProfit, &backtestTrades, &backtestWinRate,
			&backtestDrawdown, &backtestSharpe, &backtestTimestamp,
			&gap,
		); err != nil {
			return nil, fmt.Errorf("failed to scan gap row: %w", err)
		}

		if backtestID.Valid {
			row.BacktestID = &backtestID.Int64
			trades := int(backtestTrades.Int64)
			row.BacktestTrades = &trades
			row.BacktestProfit = &backtestProfit.Float64
			row.BacktestWinRate = &backtestWinRate.Float64
			row.BacktestDrawdown = &backtestDrawdown.Float64
			row.BacktestSharpe = &backtestSharpe.Float64
			row.BacktestTimestamp = &backtestTimestamp.Time
		}
		if gap.Valid {
			row.RealityGapPct = &gap.Float64
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Timeline returns the unioned run history of one strategy, newest first.
func (e *Engine) Timeline(ctx context.Context, strategyName string) ([]*TimelineEvent, error) {
	query := `
		SELECT 'hyperopt' AS type, id, timestamp,
			total_profit_pct, total_trades, sharpe_ratio, run_number,
			COALESCE(epochs, 0), COALESCE(hyperopt_function, '') AS details
		FROM hyperopt_results
		WHERE strategy_name = $1 AND status = 'completed'

		UNION ALL

		SELECT 'backtest' AS type, id, timestamp,
			total_profit_pct, total_trades, sharpe_ratio,
			COALESCE(hyperopt_id, 0) AS run_number,
			COALESCE(backtest_duration_seconds, 0),
			'Backtest validation' AS details
		FROM backtest_results
		WHERE strategy_name = $1 AND status = 'completed'

		ORDER BY timestamp DESC`

	rows, err := e.db.Conn().QueryContext(ctx, query, strategyName)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy timeline: %w", err)
	}
	defer rows.Close()

	var events []*TimelineEvent
	for rows.Next() {
		event := &TimelineEvent{}
		if err := rows.Scan(
			&event.Type, &event.ID, &event.Timestamp,
			&event.TotalProfitPct, &event.TotalTrades, &event.SharpeRatio,
			&event.RunNumber, &event.Epochs, &event.Details,
		); err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Untested lists completed optimization runs with no linked validation run,
// best first. These are the optimizer winners still awaiting validation.
func (e *Engine) Untested(ctx context.Context) ([]*RankedRun, error) {
	query := "SELECT " + rankedRunColumns + `
		FROM hyperopt_results h
		WHERE h.status = 'completed'
		AND NOT EXISTS (
			SELECT 1 FROM backtest_results b WHERE b.hyperopt_id = h.id
		)
		ORDER BY total_profit_pct DESC, strategy_name ASC`

	rows, err := e.db.Conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query untested strategies: %w", err)
	}
	defer rows.Close()

	var results []*RankedRun
	for rows.Next() {
		run := &RankedRun{}
		if err := rows.Scan(
			&run.ID, &run.StrategyName, &run.Timestamp, &run.Timeframe,
			&run.TotalProfitPct, &run.TotalTrades, &run.WinRate,
			&run.MaxDrawdownPct, &run.SharpeRatio, &run.ConfigFilePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan untested run: %w", err)
		}
		results = append(results, run)
	}
	return results, rows.Err()
}

// StatsSummary aggregates both tables plus the global reality gap over
// linked pairs. Results are cached briefly; dashboards poll this.
func (e *Engine) StatsSummary(ctx context.Context) (*StatsSummary, error) {
	if cached, ok := e.cache.Get(statsCacheKey); ok {
		return cached.(*StatsSummary), nil
	}

	summary := &StatsSummary{}

	hyperopt, _, err := e.tableStats(ctx, "hyperopt_results")
	if err != nil {
		return nil, err
	}
	summary.Hyperopt = *hyperopt

	backtest, linked, err := e.tableStats(ctx, "backtest_results")
	if err != nil {
		return nil, err
	}
	summary.Backtest = *backtest
	summary.LinkedRows = linked

	var avgGap sql.NullFloat64
	err = e.db.Conn().QueryRowContext(ctx, `
		SELECT AVG(h.total_profit_pct - b.total_profit_pct), COUNT(*)
		FROM hyperopt_results h
		JOIN backtest_results b ON h.id = b.hyperopt_id
		WHERE h.status = 'completed' AND b.status = 'completed'`,
	).Scan(&avgGap, &summary.ComparedPairs)
	if err != nil {
		return nil, fmt.Errorf("failed to query reality gap stats: %w", err)
	}
	if avgGap.Valid {
		summary.AvgRealityGap = &avgGap.Float64
	}

	e.cache.Set(statsCacheKey, summary, cache.DefaultExpiration)
	return summary, nil
}

func (e *Engine) tableStats(ctx context.Context, table string) (*TableStats, int, error) {
	linkedColumn := "0"
	if table == "backtest_results" {
		linkedColumn = "COUNT(hyperopt_id)"
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(DISTINCT strategy_name),
			AVG(total_profit_pct), MAX(total_profit_pct), MIN(total_profit_pct),
			%s
		FROM %s WHERE status = 'completed'`, linkedColumn, table)

	stats := &TableStats{}
	var avg, max, min sql.NullFloat64
	var linked int
	err := e.db.Conn().QueryRowContext(ctx, query).Scan(
		&stats.Total, &stats.UniqueStrategies, &avg, &max, &min, &linked,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query %s stats: %w", table, err)
	}

	if avg.Valid {
		stats.AvgProfitPct = &avg.Float64
	}
	if max.Valid {
		stats.MaxProfitPct = &max.Float64
	}
	if min.Valid {
		stats.MinProfitPct = &min.Float64
	}
	return stats, linked, nil
}
