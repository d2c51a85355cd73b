package models

import (
	"testing"
	"time"
)

func TestRealityGapSign(t *testing.T) {
	// Optimizer overstated: 12.5% promised, 4.0% validated -> +8.5 gap
	gap := RealityGap(12.5, 4.0)
	if gap != 8.5 {
		t.Fatalf("expected gap +8.5, got %v", gap)
	}

	// Underfitting direction is negative
	if RealityGap(4.0, 12.5) != -8.5 {
		t.Fatalf("expected gap -8.5, got %v", RealityGap(4.0, 12.5))
	}
}

func TestIsOverfit(t *testing.T) {
	if IsOverfit(5.0) {
		t.Fatal("gap of exactly 5.0 should not trip the threshold")
	}
	if !IsOverfit(5.1) {
		t.Fatal("gap above 5.0 should trip the threshold")
	}
	if IsOverfit(-8.0) {
		t.Fatal("underfitting gap should not be reported as overfit")
	}
}

func TestHyperoptResultValidate(t *testing.T) {
	r := &HyperoptResult{StrategyName: "SMA200", HyperoptFunction: "SharpeHyperOptLoss", Epochs: 100}
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid result, got %v", err)
	}

	r.StrategyName = ""
	if err := r.Validate(); err != ErrStrategyNameRequired {
		t.Fatalf("expected ErrStrategyNameRequired, got %v", err)
	}

	r.StrategyName = "SMA200"
	r.Epochs = 0
	if err := r.Validate(); err != ErrEpochsRequired {
		t.Fatalf("expected ErrEpochsRequired, got %v", err)
	}

	// No search configuration means no epoch requirement
	r.HyperoptFunction = ""
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid result without search config, got %v", err)
	}
}

func TestBacktestResultValidate(t *testing.T) {
	r := &BacktestResult{StrategyName: "SMA200"}
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid result, got %v", err)
	}

	bad := int64(0)
	r.HyperoptID = &bad
	if err := r.Validate(); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestSessionSummaryImmutableUpdates(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessionSummary("", start)
	if s.Name != "Session_20250601_120000" {
		t.Fatalf("unexpected default session name %q", s.Name)
	}

	updated := s.WithResult(true).WithResult(false).WithResult(true)
	if s.Total != 0 {
		t.Fatal("original summary must not be mutated")
	}
	if updated.Total != 3 || updated.Succeeded != 2 || updated.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", updated)
	}

	withDur := updated.WithDuration(start.Add(90 * time.Second))
	if withDur.DurationSeconds != 90 {
		t.Fatalf("expected 90s duration, got %d", withDur.DurationSeconds)
	}

	rate := updated.SuccessRate()
	if rate < 66.6 || rate > 66.7 {
		t.Fatalf("unexpected success rate %v", rate)
	}
	if (SessionSummary{}).SuccessRate() != 0 {
		t.Fatal("empty session should report zero success rate")
	}
}
