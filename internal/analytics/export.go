package analytics

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ExportKind selects which ranking an export draws from.
type ExportKind string

const (
	ExportHyperopt ExportKind = "hyperopt"
	ExportBacktest ExportKind = "backtest"
)

// ExportBestConfigs copies the recorded configuration artifacts of the
// top-ranked runs into destDir. Rows without a recorded configuration file
// are skipped; a copy failure skips the row and continues.
func (e *Engine) ExportBestConfigs(ctx context.Context, kind ExportKind, filter Filter, destDir string) (int, error) {
	var (
		runs []*RankedRun
		err  error
	)
	switch kind {
	case ExportBacktest:
		runs, err = e.TopBacktest(ctx, filter)
	default:
		runs, err = e.TopHyperopt(ctx, filter)
	}
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, run := range runs {
		if run.ConfigFilePath == "" {
			continue
		}
		destPath, err := e.store.CopyTo(run.ConfigFilePath, destDir)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"strategy": run.StrategyName,
				"source":   run.ConfigFilePath,
			}).WithError(err).Warn("Failed to export config artifact")
			continue
		}
		e.logger.WithFields(logrus.Fields{
			"strategy": run.StrategyName,
			"dest":     destPath,
		}).Info("Exported config artifact")
		exported++
	}
	return exported, nil
}
