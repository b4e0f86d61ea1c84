package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
)

func TestAnalyzeAccuracyNeedsTwoForecasts(t *testing.T) {
	_, err := AnalyzeAccuracy([]domain.MonteCarloForecast{{RemainingPoints: 10}}, nil)
	if !errors.Is(err, domain.ErrInsufficientSample) {
		t.Fatalf("expected ErrInsufficientSample, got %v", err)
	}
}

func TestAnalyzeAccuracyNoMatchingCycles(t *testing.T) {
	forecasts := []domain.MonteCarloForecast{
		{RemainingPoints: 100},
		{RemainingPoints: 200},
	}
	history := []domain.CycleMetrics{{TotalStoryPoints: 10, EndsAt: simNow}}
	_, err := AnalyzeAccuracy(forecasts, history)
	if !errors.Is(err, domain.ErrInsufficientSample) {
		t.Fatalf("expected ErrInsufficientSample when nothing matches, got %v", err)
	}
}

func TestAnalyzeAccuracyBiasAndHitRates(t *testing.T) {
	actual := time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	forecasts := []domain.MonteCarloForecast{
		{ // overestimate by two days, every confidence level covers the actual
			RemainingPoints: 10,
			P50Date:         actual.Add(2 * day),
			P80Date:         actual.Add(3 * day),
			P95Date:         actual.Add(4 * day),
		},
		{ // underestimate by one day, only p80 and p95 cover the actual
			RemainingPoints: 10,
			P50Date:         actual.Add(-1 * day),
			P80Date:         actual.Add(1 * day),
			P95Date:         actual.Add(2 * day),
		},
	}
	history := []domain.CycleMetrics{
		{TotalStoryPoints: 12, EndsAt: actual},
		{TotalStoryPoints: 50, EndsAt: actual.Add(30 * day)}, // later but bigger: not the match
	}

	acc, err := AnalyzeAccuracy(forecasts, history)
	if err != nil {
		t.Fatalf("AnalyzeAccuracy: %v", err)
	}
	if acc.Forecasts != 2 || acc.Matched != 2 {
		t.Fatalf("forecasts/matched = %d/%d, want 2/2", acc.Forecasts, acc.Matched)
	}
	if acc.ForecastBiasDays != 0.5 {
		t.Fatalf("bias = %v days, want 0.5", acc.ForecastBiasDays)
	}
	if acc.MeanAbsoluteErrorDays != 1.5 {
		t.Fatalf("mae = %v days, want 1.5", acc.MeanAbsoluteErrorDays)
	}
	if acc.Within50Pct != 50 || acc.Within80Pct != 100 || acc.Within95Pct != 100 {
		t.Fatalf("hit rates = %v/%v/%v, want 50/100/100", acc.Within50Pct, acc.Within80Pct, acc.Within95Pct)
	}
}
