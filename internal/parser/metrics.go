// Package parser extracts numeric performance metrics from the semi-structured
// textual reports emitted by the trading engine CLI. Every metric is matched
// by an independent labeled-line pattern; a metric missing from the text
// defaults to zero so callers never need to null-check. Parsing is
// best-effort by design: the raw text is always persisted next to the parsed
// values for manual inspection, tagged with Version so historical parses stay
// reproducible when patterns evolve.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourusername/strategy-lab/internal/models"
)

// Version tags stored raw output with the pattern generation that parsed it.
const Version = "v1"

// defaultTradeDuration is the sentinel used when the engine omits the field.
const defaultTradeDuration = "0 days"

// The engine renders metrics in box-drawn tables. Patterns accept both the
// unicode box bar and a plain pipe since older engine versions used either.
var (
	reTotalProfitPct = regexp.MustCompile(`Total profit %\s*[│|]\s*(-?\d+(?:\.\d+)?)%`)
	reTotalProfitAbs = regexp.MustCompile(`Abs profit\s*[│|]\s*(-?\d+(?:\.\d+)?)`)
	reTotalTrades    = regexp.MustCompile(`Total trades\s*[│|]\s*(\d+)`)
	reWinDrawLose    = regexp.MustCompile(`Win/Draw/Lose\s*[│|]\s*(\d+)/(\d+)/(\d+)`)
	reAvgProfitPct   = regexp.MustCompile(`Avg profit %\s*[│|]\s*(-?\d+(?:\.\d+)?)%`)
	reDrawdownPct    = regexp.MustCompile(`Max Drawdown\s*[│|]\s*(-?\d+(?:\.\d+)?)%`)
	reDrawdownAbs    = regexp.MustCompile(`Max Drawdown\s*[│|][^│|\n]*[│|]\s*(-?\d+(?:\.\d+)?)`)
	reBestTradePct   = regexp.MustCompile(`Best trade %\s*[│|]\s*(-?\d+(?:\.\d+)?)%`)
	reWorstTradePct  = regexp.MustCompile(`Worst trade %\s*[│|]\s*(-?\d+(?:\.\d+)?)%`)
	reAvgDuration    = regexp.MustCompile(`Avg trade duration\s*[│|]\s*([^│|\n]+)`)
	reSharpe         = regexp.MustCompile(`Sharpe\s*[│|]\s*(-?\d+(?:\.\d+)?)`)
	reCalmar         = regexp.MustCompile(`Calmar\s*[│|]\s*(-?\d+(?:\.\d+)?)`)
	reSortino        = regexp.MustCompile(`Sortino\s*[│|]\s*(-?\d+(?:\.\d+)?)`)
	reProfitFactor   = regexp.MustCompile(`Profit factor\s*[│|]\s*(-?\d+(?:\.\d+)?)`)
	reExpectancy     = regexp.MustCompile(`Expectancy\s*[│|]\s*(-?\d+(?:\.\d+)?)`)
)

// HyperoptReport holds the metrics recovered from a hyperopt-show report.
type HyperoptReport struct {
	models.PerformanceMetrics

	WinningTrades int
	DrawTrades    int
	LosingTrades  int
}

// BacktestReport holds the metrics recovered from a backtest report.
type BacktestReport struct {
	models.PerformanceMetrics

	WinningTrades int
	DrawTrades    int
	LosingTrades  int

	MaxDrawdownAbs   decimal.Decimal
	BestTradePct     float64
	WorstTradePct    float64
	AvgTradeDuration string
}

// ParseHyperoptReport extracts metrics from captured hyperopt output. It
// never fails: unrecognizable input yields a report of all defaults.
func ParseHyperoptReport(raw string) HyperoptReport {
	var r HyperoptReport
	r.PerformanceMetrics = parseSharedMetrics(raw)
	r.WinningTrades, r.DrawTrades, r.LosingTrades, r.WinRate = parseWinDrawLose(raw)
	return r
}

// ParseBacktestReport extracts metrics from captured backtest output,
// including the trade statistics only backtests report.
func ParseBacktestReport(raw string) BacktestReport {
	var r BacktestReport
	r.PerformanceMetrics = parseSharedMetrics(raw)
	r.WinningTrades, r.DrawTrades, r.LosingTrades, r.WinRate = parseWinDrawLose(raw)

	r.MaxDrawdownAbs = decimal.NewFromFloat(matchFloat(reDrawdownAbs, raw))
	r.BestTradePct = matchFloat(reBestTradePct, raw)
	r.WorstTradePct = matchFloat(reWorstTradePct, raw)

	r.AvgTradeDuration = defaultTradeDuration
	if m := reAvgDuration.FindStringSubmatch(raw); m != nil {
		if d := strings.TrimSpace(m[1]); d != "" {
			r.AvgTradeDuration = d
		}
	}
	return r
}

func parseSharedMetrics(raw string) models.PerformanceMetrics {
	return models.PerformanceMetrics{
		TotalProfitPct: matchFloat(reTotalProfitPct, raw),
		TotalProfitAbs: decimal.NewFromFloat(matchFloat(reTotalProfitAbs, raw)),
		TotalTrades:    matchInt(reTotalTrades, raw),
		AvgProfitPct:   matchFloat(reAvgProfitPct, raw),
		MaxDrawdownPct: matchFloat(reDrawdownPct, raw),
		SharpeRatio:    matchFloat(reSharpe, raw),
		CalmarRatio:    matchFloat(reCalmar, raw),
		SortinoRatio:   matchFloat(reSortino, raw),
		ProfitFactor:   matchFloat(reProfitFactor, raw),
		Expectancy:     matchFloat(reExpectancy, raw),
	}
}

// parseWinDrawLose recovers the raw win/draw/loss counts and derives the win
// rate, guarding against a zero trade total.
func parseWinDrawLose(raw string) (wins, draws, losses int, winRate float64) {
	m := reWinDrawLose.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0, 0, 0
	}
	wins, _ = strconv.Atoi(m[1])
	draws, _ = strconv.Atoi(m[2])
	losses, _ = strconv.Atoi(m[3])

	total := wins + draws + losses
	if total > 0 {
		winRate = float64(wins) / float64(total) * 100
	}
	return wins, draws, losses, winRate
}

func matchFloat(re *regexp.Regexp, raw string) float64 {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

func matchInt(re *regexp.Regexp, raw string) int {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}
