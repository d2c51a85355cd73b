// Package main provides the entry point for the optimization orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/analytics"
	"github.com/yourusername/strategy-lab/internal/artifacts"
	"github.com/yourusername/strategy-lab/internal/config"
	"github.com/yourusername/strategy-lab/internal/database"
	"github.com/yourusername/strategy-lab/internal/health"
	"github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/notify"
	"github.com/yourusername/strategy-lab/internal/repository"
	"github.com/yourusername/strategy-lab/internal/runner"
	"github.com/yourusername/strategy-lab/internal/scheduler"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "Path to config file")
		mode       = flag.String("mode", "batch", "Run mode: hyperopt, backtest, batch, batch-backtest, download, scheduled")
		strategy   = flag.String("strategy", "", "Strategy name (hyperopt and backtest modes)")
		strategies = flag.String("strategies", "", "Comma-separated strategy names (batch mode)")
		hyperoptID = flag.Int64("hyperopt-id", 0, "Hyperopt run to validate (backtest mode)")
		limit      = flag.Int("limit", 5, "Number of top runs to validate (batch-backtest mode)")
		timeframe  = flag.String("timeframe", "", "Timeframe filter (batch-backtest mode)")
		exchange   = flag.String("exchange", "binance", "Exchange to download from (download mode)")
		pairs      = flag.String("pairs", "", "Comma-separated pairs (download mode)")
		timeframes = flag.String("timeframes", "", "Comma-separated timeframes (download mode)")
		timerange  = flag.String("timerange", "", "Timerange to download (download mode)")
	)
	flag.Parse()

	cfg, log := loadConfigWithSecrets(*configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor, db := buildExecutor(ctx, cfg, log)
	defer db.Close()

	go handleSignals(cancel, executor, log)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg, log)
	}

	switch *mode {
	case "hyperopt":
		runHyperopt(ctx, executor, cfg, *strategy, log)
	case "backtest":
		runBacktest(ctx, executor, *strategy, *hyperoptID, log)
	case "batch":
		runBatch(ctx, executor, splitList(*strategies), log)
	case "batch-backtest":
		runBatchBacktest(ctx, executor, *limit, *timeframe, log)
	case "download":
		runDownload(ctx, executor, *exchange, splitList(*pairs), splitList(*timeframes), *timerange, log)
	case "scheduled":
		runScheduled(ctx, executor, db, cfg, log)
	default:
		log.Fatalf("Unsupported mode: %s", *mode)
	}
}

func loadConfigWithSecrets(path string) (*config.Config, *logrus.Logger) {
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.NewLogger(cfg.App.LogLevel)

	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatal("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg, log
}

func buildExecutor(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*runner.Executor, *database.DB) {
	db, err := database.NewDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	migrator := database.NewMigrator(db, log)
	report, err := migrator.Migrate(ctx)
	if err != nil {
		log.Fatalf("Failed to migrate legacy data: %v", err)
	}
	if !report.AlreadyApplied && len(report.LegacyTables) > 0 {
		log.WithFields(logrus.Fields{
			"hyperopt_rows": report.HyperoptRows,
			"backtest_rows": report.BacktestRows,
		}).Info("Legacy data copied into current schema")
	}

	repos, err := repository.NewRepositories(db)
	if err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	metrics.InitRegistry()

	store := artifacts.NewStore(cfg.Artifacts.BaseDir, log)
	engine := analytics.NewEngine(db, store, log)
	notifier := notify.NewNotifier(&cfg.Notify, log)
	runLog := logger.NewRunLogger(log)
	tracker := runner.NewSessionTracker(runLog)

	return runner.NewExecutor(cfg, repos, engine, store, notifier, tracker, runLog), db
}

func handleSignals(cancel context.CancelFunc, executor *runner.Executor, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received, stopping in-flight run")
	executor.Stop()
	cancel()
}

func serveMetrics(cfg *config.Config, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())

	addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
	log.WithField("addr", addr).Info("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server stopped")
	}
}

func runHyperopt(ctx context.Context, executor *runner.Executor, cfg *config.Config, strategy string, log *logrus.Logger) {
	if strategy == "" {
		log.Fatal("-strategy is required in hyperopt mode")
	}

	executor.Session().Start("")
	for run := 1; run <= cfg.Optimization.RunsPerStrategy; run++ {
		result, err := executor.RunHyperopt(ctx, strategy, run)
		if err != nil {
			log.Fatalf("Hyperopt run failed to persist: %v", err)
		}
		if result.Success {
			log.WithField("hyperopt_id", result.HyperoptID).Info("Hyperopt run stored")
		}
	}
	executor.Session().Finish()
}

func runBacktest(ctx context.Context, executor *runner.Executor, strategy string, hyperoptID int64, log *logrus.Logger) {
	executor.Session().Start("")
	defer executor.Session().Finish()

	if hyperoptID > 0 {
		result, err := executor.BacktestFromHyperopt(ctx, hyperoptID)
		if err != nil {
			log.Fatalf("Backtest failed: %v", err)
		}
		log.WithField("backtest_id", result.BacktestID).Info("Validation backtest stored")
		return
	}

	if strategy == "" {
		log.Fatal("-strategy or -hyperopt-id is required in backtest mode")
	}
	result, err := executor.RunBacktest(ctx, strategy, executor.EngineConfigPath(), nil)
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}
	log.WithField("backtest_id", result.BacktestID).Info("Backtest stored")
}

func runBatch(ctx context.Context, executor *runner.Executor, strategies []string, log *logrus.Logger) {
	if len(strategies) == 0 {
		log.Fatal("-strategies is required in batch mode")
	}

	summary, err := executor.RunBatch(ctx, strategies)
	if err != nil && ctx.Err() == nil {
		log.Fatalf("Batch failed: %v", err)
	}
	log.WithFields(logrus.Fields{
		"session_name": summary.Name,
		"total":        summary.Total,
		"succeeded":    summary.Succeeded,
		"failed":       summary.Failed,
		"success_rate": summary.SuccessRate(),
	}).Info("Batch session finished")
}

func runBatchBacktest(ctx context.Context, executor *runner.Executor, limit int, timeframe string, log *logrus.Logger) {
	executor.Session().Start("")
	defer executor.Session().Finish()

	results, err := executor.BatchBacktestBest(ctx, limit, timeframe)
	if err != nil {
		log.Fatalf("Batch backtest failed: %v", err)
	}
	log.WithField("validated", len(results)).Info("Batch backtest finished")
}

func runDownload(ctx context.Context, executor *runner.Executor, exchange string, pairs, timeframes []string, timerange string, log *logrus.Logger) {
	result, err := executor.DownloadData(ctx, exchange, pairs, timeframes, timerange)
	if err != nil {
		log.Fatalf("Download failed: %v", err)
	}
	if !result.Success {
		log.WithField("exit_code", result.ExitCode).Fatal("Download command failed")
	}
	log.WithField("duration", result.Duration.Round(time.Second)).Info("Market data downloaded")
}

func runScheduled(ctx context.Context, executor *runner.Executor, db *database.DB, cfg *config.Config, log *logrus.Logger) {
	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Logger:      log,
		DB:          db,
		Session:     executor.Session(),
	})
	if err := healthServer.Start(ctx); err != nil {
		log.Fatalf("Failed to start health server: %v", err)
	}
	healthServer.SetReady(true)

	sched := scheduler.NewScheduler(executor, log)
	if err := sched.FromConfig(&cfg.Scheduler); err != nil {
		log.Fatalf("Failed to schedule batch job: %v", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.WithField("next_run", sched.GetNextRun()).Info("Scheduler running")

	<-ctx.Done()
	if err := sched.Stop(); err != nil {
		log.WithError(err).Error("Scheduler shutdown failed")
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
