// Package main provides the results-analysis CLI over the optimization store.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/strategy-lab/internal/analytics"
	"github.com/yourusername/strategy-lab/internal/artifacts"
	"github.com/yourusername/strategy-lab/internal/config"
	"github.com/yourusername/strategy-lab/internal/database"
	"github.com/yourusername/strategy-lab/internal/logger"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	appLogger  *logrus.Logger
	cfg        *config.Config
	db         *database.DB
	engine     *analytics.Engine

	limitFlag     int
	timeframeFlag string
	minTradesFlag int
	confirmFlag   bool
	exportKind    string
	exportDest    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")

	for _, cmd := range []*cobra.Command{bestHyperoptCmd, bestBacktestCmd, untestedCmd} {
		cmd.Flags().IntVar(&limitFlag, "limit", 10, "Maximum rows to show")
		cmd.Flags().StringVar(&timeframeFlag, "timeframe", "", "Filter by timeframe")
		cmd.Flags().IntVar(&minTradesFlag, "min-trades", 0, "Minimum trade count")
	}

	cleanupCmd.Flags().BoolVar(&confirmFlag, "confirm", false, "Actually drop the legacy tables")

	exportCmd.Flags().StringVar(&exportKind, "kind", "hyperopt", "Which ranking to export: hyperopt or backtest")
	exportCmd.Flags().IntVar(&limitFlag, "limit", 10, "Number of top configs to export")
	exportCmd.Flags().StringVar(&exportDest, "dest", "./exported_configs", "Destination directory")

	rootCmd.AddCommand(bestHyperoptCmd, bestBacktestCmd, gapCmd, timelineCmd,
		untestedCmd, statsCmd, migrateCmd, cleanupCmd, exportCmd)
}

var rootCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "Inspect optimization and validation results",
	Long:  `Queries the result store: best-of rankings, reality-gap reconciliation, per-strategy timelines, and aggregate statistics.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	return config.Validate(cfg)
}

func setupDependencies(ctx context.Context) error {
	appLogger = logger.NewLogger(cfg.App.LogLevel)

	var err error
	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	store := artifacts.NewStore(cfg.Artifacts.BaseDir, appLogger)
	engine = analytics.NewEngine(db, store, appLogger)
	return nil
}

func rankingFilter() analytics.Filter {
	return analytics.Filter{
		Limit:     limitFlag,
		Timeframe: timeframeFlag,
		MinTrades: minTradesFlag,
	}
}

var bestHyperoptCmd = &cobra.Command{
	Use:   "best-hyperopt",
	Short: "Rank completed optimization runs by profit",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := engine.TopHyperopt(cmd.Context(), rankingFilter())
		if err != nil {
			return err
		}
		printRanking(runs)
		return nil
	},
}

var bestBacktestCmd = &cobra.Command{
	Use:   "best-backtest",
	Short: "Rank completed validation backtests by profit",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := engine.TopBacktest(cmd.Context(), rankingFilter())
		if err != nil {
			return err
		}
		printRanking(runs)
		return nil
	},
}

var gapCmd = &cobra.Command{
	Use:   "gap [strategy]",
	Short: "Compare optimizer results against their validation backtests",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategyName := ""
		if len(args) == 1 {
			strategyName = args[0]
		}

		rows, err := engine.GapComparison(cmd.Context(), strategyName)
		if err != nil {
			return err
		}

		w := newTable()
		fmt.Fprintln(w, "HYPEROPT\tSTRATEGY\tOPT PROFIT %\tBT PROFIT %\tGAP %\tOVERFIT\tBT ID")
		for _, row := range rows {
			fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
				row.HyperoptID, row.StrategyName, row.HyperoptProfit,
				formatFloat(row.BacktestProfit), formatFloat(row.RealityGapPct),
				formatOverfit(row), formatID(row.BacktestID))
		}
		return w.Flush()
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline <strategy>",
	Short: "Show the full run history of one strategy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := engine.Timeline(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := newTable()
		fmt.Fprintln(w, "WHEN\tTYPE\tID\tPROFIT %\tTRADES\tSHARPE\tDETAILS")
		for _, event := range events {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%d\t%.2f\t%s\n",
				event.Timestamp.Format(time.RFC3339), event.Type, event.ID,
				event.TotalProfitPct, event.TotalTrades, event.SharpeRatio, event.Details)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		summary := analytics.SummarizeTimeline(events)
		fmt.Printf("\nHyperopt runs: %d  Backtests: %d\n", summary.HyperoptCount, summary.BacktestCount)
		if summary.AvgRealityGapPct != nil {
			fmt.Printf("Average reality gap: %.2f%%\n", *summary.AvgRealityGapPct)
		}
		return nil
	},
}

var untestedCmd = &cobra.Command{
	Use:   "untested",
	Short: "List optimizer winners with no validation backtest yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := engine.Untested(cmd.Context())
		if err != nil {
			return err
		}
		printRanking(runs)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over the whole result store",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := engine.StatsSummary(cmd.Context())
		if err != nil {
			return err
		}

		printTableStats("Hyperopt results", summary.Hyperopt)
		printTableStats("Backtest results", summary.Backtest)
		fmt.Printf("Linked backtests: %d\n", summary.LinkedRows)
		fmt.Printf("Compared pairs:   %d\n", summary.ComparedPairs)
		if summary.AvgRealityGap != nil {
			fmt.Printf("Avg reality gap:  %.2f%%\n", *summary.AvgRealityGap)
		} else {
			fmt.Println("Avg reality gap:  n/a (no linked pairs)")
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy data from legacy schema generations into the current tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.EnsureSchema(cmd.Context()); err != nil {
			return err
		}

		report, err := database.NewMigrator(db, appLogger).Migrate(cmd.Context())
		if err != nil {
			return err
		}

		if report.AlreadyApplied {
			fmt.Println("Legacy migration already applied; nothing to do.")
			return nil
		}
		if len(report.LegacyTables) == 0 {
			fmt.Println("No legacy tables found; nothing to migrate.")
			return nil
		}
		fmt.Printf("Migrated %d hyperopt rows and %d backtest rows from %v\n",
			report.HyperoptRows, report.BacktestRows, report.LegacyTables)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-legacy",
	Short: "Drop legacy tables after a successful migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.NewMigrator(db, appLogger).CleanupLegacy(cmd.Context(), confirmFlag); err != nil {
			return err
		}
		fmt.Println("Legacy tables dropped.")
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the config artifacts of the top-ranked runs to a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := analytics.ExportKind(exportKind)
		if kind != analytics.ExportHyperopt && kind != analytics.ExportBacktest {
			return fmt.Errorf("unknown export kind %q", exportKind)
		}

		count, err := engine.ExportBestConfigs(cmd.Context(), kind, analytics.Filter{Limit: limitFlag}, exportDest)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d config files to %s\n", count, exportDest)
		return nil
	},
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func printRanking(runs []*analytics.RankedRun) {
	w := newTable()
	fmt.Fprintln(w, "ID\tSTRATEGY\tTIMEFRAME\tPROFIT %\tTRADES\tWIN %\tDRAWDOWN %\tSHARPE\tWHEN")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%d\t%.1f\t%.2f\t%.2f\t%s\n",
			run.ID, run.StrategyName, run.Timeframe, run.TotalProfitPct,
			run.TotalTrades, run.WinRate, run.MaxDrawdownPct, run.SharpeRatio,
			run.Timestamp.Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func printTableStats(title string, stats analytics.TableStats) {
	fmt.Printf("%s: %d rows, %d strategies", title, stats.Total, stats.UniqueStrategies)
	if stats.AvgProfitPct != nil {
		fmt.Printf(", avg %.2f%%, best %.2f%%, worst %.2f%%",
			*stats.AvgProfitPct, *stats.MaxProfitPct, *stats.MinProfitPct)
	}
	fmt.Println()
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatID(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func formatOverfit(row *analytics.GapRow) string {
	if row.RealityGapPct == nil {
		return "-"
	}
	if row.Overfit() {
		return "YES"
	}
	return "no"
}
