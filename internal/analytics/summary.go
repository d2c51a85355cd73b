package analytics

// TimelineSummary holds per-type statistics computed client-side over a
// strategy's unioned run history.
type TimelineSummary struct {
	HyperoptCount    int
	BestHyperoptPct  float64
	AvgHyperoptPct   float64
	BacktestCount    int
	BestBacktestPct  float64
	AvgBacktestPct   float64
	AvgRealityGapPct *float64
}

// SummarizeTimeline reduces a timeline to per-type best/average figures.
// The average gap is reported only when both run types are present.
func SummarizeTimeline(events []*TimelineEvent) TimelineSummary {
	summary := TimelineSummary{}
	var hyperoptSum, backtestSum float64

	for _, event := range events {
		switch event.Type {
		case EventHyperopt:
			summary.HyperoptCount++
			hyperoptSum += event.TotalProfitPct
			if summary.HyperoptCount == 1 || event.TotalProfitPct > summary.BestHyperoptPct {
				summary.BestHyperoptPct = event.TotalProfitPct
			}
		case EventBacktest:
			summary.BacktestCount++
			backtestSum += event.TotalProfitPct
			if summary.BacktestCount == 1 || event.TotalProfitPct > summary.BestBacktestPct {
				summary.BestBacktestPct = event.TotalProfitPct
			}
		}
	}

	if summary.HyperoptCount > 0 {
		summary.AvgHyperoptPct = hyperoptSum / float64(summary.HyperoptCount)
	}
	if summary.BacktestCount > 0 {
		summary.AvgBacktestPct = backtestSum / float64(summary.BacktestCount)
	}
	if summary.HyperoptCount > 0 && summary.BacktestCount > 0 {
		gap := summary.AvgHyperoptPct - summary.AvgBacktestPct
		summary.AvgRealityGapPct = &gap
	}
	return summary
}
