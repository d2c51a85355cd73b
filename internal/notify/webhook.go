// Package notify delivers webhook notifications for finished batch sessions
// and large reality gaps.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/strategy-lab/internal/config"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/models"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultMaxRetry  = 3
	defaultRetryMin  = 500 * time.Millisecond
	defaultRetryMax  = 10 * time.Second
	defaultRatePerMn = 6.0
)

// Notifier posts JSON event payloads to a configured webhook URL. Delivery
// is rate limited and retried on transient failures; a notification that
// still fails is logged and dropped, never propagated to the run path.
type Notifier struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	url     string
	enabled bool
	logger  *logrus.Logger
}

// NewNotifier creates a notifier from configuration. A disabled notifier is
// valid; its methods are no-ops.
func NewNotifier(cfg *config.NotifyConfig, logger *logrus.Logger) *Notifier {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = defaultTimeout
	client.RetryMax = defaultMaxRetry
	client.RetryWaitMin = defaultRetryMin
	client.RetryWaitMax = defaultRetryMax
	client.Logger = nil

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = defaultRatePerMn
	}

	return &Notifier{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60.0), 1),
		url:     cfg.WebhookURL,
		enabled: cfg.Enabled && cfg.WebhookURL != "",
		logger:  logger,
	}
}

// SessionEvent is the payload posted when a batch session finishes.
type SessionEvent struct {
	Event           string  `json:"event"`
	SessionID       string  `json:"session_id"`
	SessionName     string  `json:"session_name"`
	TotalRuns       int     `json:"total_runs"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	SuccessRate     float64 `json:"success_rate"`
	DurationSeconds int     `json:"duration_seconds"`
}

// GapEvent is the payload posted when a linked pair crosses the overfit
// threshold.
type GapEvent struct {
	Event          string  `json:"event"`
	StrategyName   string  `json:"strategy_name"`
	HyperoptID     int64   `json:"hyperopt_id"`
	BacktestID     int64   `json:"backtest_id"`
	RealityGapPct  float64 `json:"reality_gap_pct"`
	HyperoptProfit float64 `json:"hyperopt_profit_pct"`
	BacktestProfit float64 `json:"backtest_profit_pct"`
}

// SessionCompleted posts a session summary.
func (n *Notifier) SessionCompleted(ctx context.Context, summary models.SessionSummary) {
	n.post(ctx, SessionEvent{
		Event:           "session_completed",
		SessionID:       summary.ID.String(),
		SessionName:     summary.Name,
		TotalRuns:       summary.Total,
		Succeeded:       summary.Succeeded,
		Failed:          summary.Failed,
		SuccessRate:     summary.SuccessRate(),
		DurationSeconds: summary.DurationSeconds,
	})
}

// OverfitDetected posts a reality-gap warning for a linked pair.
func (n *Notifier) OverfitDetected(ctx context.Context, strategyName string, hyperoptID, backtestID int64, hyperoptProfit, backtestProfit float64) {
	n.post(ctx, GapEvent{
		Event:          "overfit_detected",
		StrategyName:   strategyName,
		HyperoptID:     hyperoptID,
		BacktestID:     backtestID,
		RealityGapPct:  models.RealityGap(hyperoptProfit, backtestProfit),
		HyperoptProfit: hyperoptProfit,
		BacktestProfit: backtestProfit,
	})
}

func (n *Notifier) post(ctx context.Context, payload interface{}) {
	if !n.enabled {
		return
	}

	if err := n.deliver(ctx, payload); err != nil {
		metrics.RecordNotification("failed")
		n.logger.WithError(err).Warn("Webhook notification failed")
		return
	}
	metrics.RecordNotification("sent")
}

func (n *Notifier) deliver(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
