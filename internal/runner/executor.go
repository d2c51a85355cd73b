// Package runner orchestrates the external trading-engine CLI: it builds
// command lines, supervises the process, and feeds captured output through
// the parser into the result store. The engine itself is a black box.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/strategy-lab/internal/analytics"
	"github.com/yourusername/strategy-lab/internal/artifacts"
	"github.com/yourusername/strategy-lab/internal/config"
	"github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/models"
	"github.com/yourusername/strategy-lab/internal/notify"
	"github.com/yourusername/strategy-lab/internal/parser"
	"github.com/yourusername/strategy-lab/internal/repository"
)

const (
	runTypeHyperopt = "hyperopt"
	runTypeBacktest = "backtest"

	// hyperopt-show and download-data are quick compared to a search run
	showResultTimeout = 60 * time.Second
	downloadTimeout   = 10 * time.Minute
)

// ExecResult captures one engine invocation.
type ExecResult struct {
	Success    bool
	ExitCode   int
	Stdout     string
	Stderr     string
	Duration   time.Duration
	HyperoptID int64
	BacktestID int64
}

// Executor runs the engine CLI and persists parsed results. One invocation
// runs at a time; Stop cancels the in-flight process.
type Executor struct {
	cfg      *config.Config
	repos    *repository.Repositories
	engine   *analytics.Engine
	store    *artifacts.Store
	notifier *notify.Notifier
	session  *SessionTracker
	log      *logger.RunLogger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewExecutor wires an executor from its collaborators.
func NewExecutor(
	cfg *config.Config,
	repos *repository.Repositories,
	engine *analytics.Engine,
	store *artifacts.Store,
	notifier *notify.Notifier,
	session *SessionTracker,
	log *logger.RunLogger,
) *Executor {
	return &Executor{
		cfg:      cfg,
		repos:    repos,
		engine:   engine,
		store:    store,
		notifier: notifier,
		session:  session,
		log:      log,
	}
}

// Session exposes the batch tracker.
func (e *Executor) Session() *SessionTracker {
	return e.session
}

// EngineConfigPath returns the configured engine configuration file.
func (e *Executor) EngineConfigPath() string {
	return e.cfg.Engine.ConfigPath
}

// Stop cancels the in-flight engine invocation, if any.
func (e *Executor) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// execute runs one engine command to completion, capturing all output.
func (e *Executor) execute(ctx context.Context, timeout time.Duration, args ...string) *ExecResult {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	metrics.RunStarted()
	defer metrics.RunFinished()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, e.cfg.Engine.Binary, args...)
	cmd.Dir = e.cfg.Engine.UserDataDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &ExecResult{
		Success:  err == nil,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	} else {
		result.ExitCode = -1
	}
	if runCtx.Err() != nil {
		result.Success = false
		if result.Stderr == "" {
			result.Stderr = runCtx.Err().Error()
		}
	}
	return result
}

// RunHyperopt runs one hyperparameter search and persists its outcome. The
// row is saved whether the engine succeeds or fails; on failure it carries
// status=failed with zeroed metrics and the raw output for inspection.
func (e *Executor) RunHyperopt(ctx context.Context, strategyName string, runNumber int) (*ExecResult, error) {
	opt := e.cfg.Optimization
	e.log.LogRunStarted(runTypeHyperopt, strategyName, opt.Timeframe, runNumber)

	args := []string{
		"hyperopt",
		"--config", e.cfg.Engine.ConfigPath,
		"--strategy", strategyName,
		"--timerange", opt.Timerange,
		"--epochs", strconv.Itoa(opt.Epochs),
		"--spaces",
	}
	args = append(args, opt.Spaces...)
	args = append(args, "--hyperopt-loss", opt.HyperoptFunction)

	result := e.execute(ctx, e.cfg.EngineTimeout(), args...)
	if !result.Success {
		e.log.LogRunFailed(runTypeHyperopt, strategyName, result.ExitCode, fmt.Errorf("%s", strings.TrimSpace(result.Stderr)))
		metrics.RecordHyperoptRun(strategyName, string(models.RunStatusFailed), result.Duration.Seconds())
		e.session.RecordResult(false)

		if _, err := e.saveHyperoptRow(ctx, strategyName, runNumber, result, "", nil); err != nil {
			return result, err
		}
		return result, nil
	}

	// The search itself prints progress; the final report comes from
	// hyperopt-show.
	show := e.execute(ctx, showResultTimeout, "hyperopt-show", "-n", "1", "--print-json")
	raw := show.Stdout
	resultDoc := extractJSONDocument(raw)

	id, err := e.saveHyperoptRow(ctx, strategyName, runNumber, &ExecResult{
		Success:  true,
		Stdout:   raw,
		Duration: result.Duration,
	}, raw, resultDoc)
	if err != nil {
		metrics.RecordHyperoptRun(strategyName, string(models.RunStatusFailed), result.Duration.Seconds())
		e.session.RecordResult(false)
		return result, err
	}

	report := parser.ParseHyperoptReport(raw)
	e.log.LogRunCompleted(runTypeHyperopt, strategyName, report.TotalProfitPct, report.TotalTrades, result.Duration)
	metrics.RecordHyperoptRun(strategyName, string(models.RunStatusCompleted), result.Duration.Seconds())
	e.session.RecordResult(true)

	result.HyperoptID = id
	return result, nil
}

func (e *Executor) saveHyperoptRow(ctx context.Context, strategyName string, runNumber int, run *ExecResult, raw string, resultDoc json.RawMessage) (int64, error) {
	configDoc := e.loadEngineConfig()
	arts, err := e.store.WriteRunArtifacts(strategyName, runNumber, configDoc, resultDoc)
	if err != nil {
		return 0, err
	}

	opt := e.cfg.Optimization
	row := &models.HyperoptResult{
		StrategyName:     strategyName,
		Status:           models.RunStatusCompleted,
		RunConfig:        e.runConfigSnapshot(configDoc, opt.Timeframe, opt.Timerange),
		HyperoptFunction: opt.HyperoptFunction,
		Epochs:           opt.Epochs,
		Spaces:           opt.Spaces,
		RunNumber:        runNumber,
		ConfigFilePath:   arts.ConfigPath,
		ResultFilePath:   arts.ResultPath,
		ConfigJSON:       configDoc,
		HyperoptJSON:     resultDoc,
		RawOutput:        raw,
		ParserVersion:    parser.Version,
		DurationSeconds:  int(run.Duration.Seconds()),
		SessionInfo:      e.sessionInfo(),
	}
	if run.Success {
		report := parser.ParseHyperoptReport(raw)
		row.PerformanceMetrics = report.PerformanceMetrics
		row.WinningTrades = report.WinningTrades
		row.DrawTrades = report.DrawTrades
		row.LosingTrades = report.LosingTrades
	} else {
		row.Status = models.RunStatusFailed
		row.RawOutput = run.Stdout + run.Stderr
	}

	return e.repos.Hyperopt.Save(ctx, row)
}

// RunBacktest runs one validation backtest against the given configuration
// file and persists the outcome. A non-nil hyperoptID links the row to the
// optimization run that produced the configuration and triggers reality-gap
// reconciliation.
func (e *Executor) RunBacktest(ctx context.Context, strategyName, configPath string, hyperoptID *int64) (*ExecResult, error) {
	bt := e.cfg.Backtest
	e.log.LogRunStarted(runTypeBacktest, strategyName, bt.Timeframe, 1)

	args := []string{
		"backtesting",
		"--config", configPath,
		"--strategy", strategyName,
		"--timerange", bt.Timerange,
	}

	result := e.execute(ctx, e.cfg.EngineTimeout(), args...)
	raw := result.Stdout

	configDoc := e.loadConfigFile(configPath)
	resultDoc := extractJSONDocument(raw)
	arts, err := e.store.WriteRunArtifacts(strategyName, 1, configDoc, resultDoc)
	if err != nil {
		return result, err
	}

	report := parser.ParseBacktestReport(raw)
	row := &models.BacktestResult{
		StrategyName:     strategyName,
		Status:           models.RunStatusCompleted,
		RunConfig:        e.runConfigSnapshot(configDoc, bt.Timeframe, bt.Timerange),
		MaxDrawdownAbs:   report.MaxDrawdownAbs,
		WinningTrades:    report.WinningTrades,
		LosingTrades:     report.LosingTrades,
		DrawTrades:       report.DrawTrades,
		BestTradePct:     report.BestTradePct,
		WorstTradePct:    report.WorstTradePct,
		AvgTradeDuration: report.AvgTradeDuration,
		ConfigFilePath:   arts.ConfigPath,
		ResultFilePath:   arts.ResultPath,
		ConfigJSON:       configDoc,
		BacktestJSON:     resultDoc,
		RawOutput:        raw,
		ParserVersion:    parser.Version,
		DurationSeconds:  int(result.Duration.Seconds()),
		HyperoptID:       hyperoptID,
		SessionInfo:      e.sessionInfo(),
	}
	row.PerformanceMetrics = report.PerformanceMetrics

	if !result.Success {
		row.Status = models.RunStatusFailed
		row.RawOutput = result.Stdout + result.Stderr
		e.log.LogRunFailed(runTypeBacktest, strategyName, result.ExitCode, fmt.Errorf("%s", strings.TrimSpace(result.Stderr)))
	}

	id, err := e.repos.Backtest.Save(ctx, row)
	if err != nil {
		metrics.RecordBacktestRun(strategyName, string(models.RunStatusFailed), result.Duration.Seconds())
		e.session.RecordResult(false)
		return result, err
	}
	result.BacktestID = id

	metrics.RecordBacktestRun(strategyName, string(row.Status), result.Duration.Seconds())
	e.session.RecordResult(result.Success)

	if result.Success {
		e.log.LogRunCompleted(runTypeBacktest, strategyName, report.TotalProfitPct, report.TotalTrades, result.Duration)
		if hyperoptID != nil {
			e.reconcileGap(ctx, strategyName, *hyperoptID, id, report.TotalProfitPct)
		}
	}
	return result, nil
}

// reconcileGap computes the reality gap for a freshly linked pair.
func (e *Executor) reconcileGap(ctx context.Context, strategyName string, hyperoptID, backtestID int64, backtestProfit float64) {
	hyperopt, err := e.repos.Hyperopt.GetByID(ctx, hyperoptID)
	if err != nil {
		e.log.WithError(err).Warn("Failed to load linked hyperopt run for gap reconciliation")
		return
	}

	gap := models.RealityGap(hyperopt.TotalProfitPct, backtestProfit)
	overfit := models.IsOverfit(gap)
	e.log.LogRealityGap(strategyName, hyperoptID, backtestID, gap, overfit)
	metrics.UpdateRealityGap(strategyName, gap)

	if overfit {
		e.notifier.OverfitDetected(ctx, strategyName, hyperoptID, backtestID, hyperopt.TotalProfitPct, backtestProfit)
	}
}

// BacktestFromHyperopt validates a stored optimization run: the backtest
// reuses the exact configuration artifact the optimizer ran against and the
// row is linked for gap analysis.
func (e *Executor) BacktestFromHyperopt(ctx context.Context, hyperoptID int64) (*ExecResult, error) {
	hyperopt, err := e.repos.Hyperopt.GetByID(ctx, hyperoptID)
	if err != nil {
		return nil, err
	}

	if hyperopt.ConfigFilePath == "" {
		return nil, fmt.Errorf("hyperopt run %d has no recorded config artifact", hyperoptID)
	}
	if _, err := os.Stat(hyperopt.ConfigFilePath); err != nil {
		return nil, fmt.Errorf("config artifact for hyperopt run %d is missing: %w", hyperoptID, err)
	}

	return e.RunBacktest(ctx, hyperopt.StrategyName, hyperopt.ConfigFilePath, &hyperoptID)
}

// BatchBacktestBest validates the top-ranked optimizer winners. Failures
// skip to the next candidate; the batch never aborts part-way.
func (e *Executor) BatchBacktestBest(ctx context.Context, limit int, timeframe string) ([]*ExecResult, error) {
	best, err := e.engine.TopHyperopt(ctx, analytics.Filter{Limit: limit, Timeframe: timeframe})
	if err != nil {
		return nil, err
	}
	if len(best) == 0 {
		e.log.Warn("No hyperopt runs found for batch backtesting")
		return nil, nil
	}

	var results []*ExecResult
	for _, candidate := range best {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		result, err := e.BacktestFromHyperopt(ctx, candidate.ID)
		if err != nil {
			e.log.WithError(err).WithField("hyperopt_id", candidate.ID).Error("Batch backtest candidate failed")
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// RunBatch optimizes each strategy in turn under one session, then emits
// the session summary notification.
func (e *Executor) RunBatch(ctx context.Context, strategies []string) (models.SessionSummary, error) {
	e.session.Start("")

	for _, strategyName := range strategies {
		for run := 1; run <= e.cfg.Optimization.RunsPerStrategy; run++ {
			if ctx.Err() != nil {
				summary := e.session.Finish()
				return summary, ctx.Err()
			}
			if _, err := e.RunHyperopt(ctx, strategyName, run); err != nil {
				e.log.WithError(err).WithField("strategy_name", strategyName).Error("Batch run failed to persist")
			}
		}
	}

	summary := e.session.Finish()
	e.notifier.SessionCompleted(ctx, summary)
	return summary, nil
}

// DownloadData fetches market data for each timeframe in turn.
func (e *Executor) DownloadData(ctx context.Context, exchange string, pairs, timeframes []string, timerange string) (*ExecResult, error) {
	if len(pairs) == 0 || len(timeframes) == 0 {
		return nil, fmt.Errorf("download requires at least one pair and one timeframe")
	}

	combined := &ExecResult{Success: true}
	var outputs []string
	for _, timeframe := range timeframes {
		args := []string{
			"download-data",
			"--exchange", exchange,
			"--timeframe", timeframe,
			"--timerange", timerange,
			"-p",
		}
		args = append(args, pairs...)

		result := e.execute(ctx, downloadTimeout, args...)
		combined.Duration += result.Duration
		outputs = append(outputs, result.Stdout)

		if !result.Success {
			result.Stdout = strings.Join(outputs, "\n")
			return result, nil
		}
	}
	combined.Stdout = strings.Join(outputs, "\n")
	return combined, nil
}

// engineConfigDoc is the subset of the engine configuration captured as the
// per-run configuration snapshot.
type engineConfigDoc struct {
	MaxOpenTrades int         `json:"max_open_trades"`
	StakeAmount   json.Number `json:"stake_amount"`
	StakeCurrency string      `json:"stake_currency"`
	Exchange      struct {
		Name          string   `json:"name"`
		PairWhitelist []string `json:"pair_whitelist"`
	} `json:"exchange"`
}

func (e *Executor) loadEngineConfig() json.RawMessage {
	return e.loadConfigFile(e.cfg.Engine.ConfigPath)
}

func (e *Executor) loadConfigFile(path string) json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil || !json.Valid(data) {
		e.log.WithField("config_path", path).Warn("Engine config not readable, storing empty snapshot")
		return json.RawMessage("{}")
	}
	return json.RawMessage(data)
}

// runConfigSnapshot extracts the trading configuration snapshot from the
// engine config document. Missing fields stay zero; "unlimited" stakes
// decode to zero.
func (e *Executor) runConfigSnapshot(configDoc json.RawMessage, timeframe, timerange string) models.RunConfig {
	var doc engineConfigDoc
	_ = json.Unmarshal(configDoc, &doc)

	stake := decimal.Zero
	if parsed, err := decimal.NewFromString(doc.StakeAmount.String()); err == nil {
		stake = parsed
	}

	return models.RunConfig{
		MaxOpenTrades: doc.MaxOpenTrades,
		Timeframe:     timeframe,
		StakeAmount:   stake,
		StakeCurrency: doc.StakeCurrency,
		Timerange:     timerange,
		PairWhitelist: doc.Exchange.PairWhitelist,
		ExchangeName:  doc.Exchange.Name,
	}
}

func (e *Executor) sessionInfo() json.RawMessage {
	snapshot, active := e.session.Snapshot()
	if !active {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	return data
}

// extractJSONDocument finds the JSON document in mixed CLI output. The
// engine prints it on its own line after the human-readable tables.
func extractJSONDocument(raw string) json.RawMessage {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed)
		}
	}
	return nil
}
