package forecast

import (
	"math"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
)

// Accuracy summarizes how past forecasts compared against what actually
// shipped. It calibrates trust in the simulator; it never feeds back
// into the simulation itself.
type Accuracy struct {
	Forecasts             int     `json:"forecasts"`
	Matched               int     `json:"matched"`
	ForecastBiasDays      float64 `json:"forecast_bias_days"` // positive means we overestimated
	MeanAbsoluteErrorDays float64 `json:"mean_absolute_error_days"`
	Within50Pct           float64 `json:"within_50_pct"`
	Within80Pct           float64 `json:"within_80_pct"`
	Within95Pct           float64 `json:"within_95_pct"`
}

// AnalyzeAccuracy scores stored forecasts against observed cycle
// completions: a forecast is matched to the earliest cycle whose scope
// covered the forecast's remaining points, and the median (p50) estimate
// is compared to that cycle's end date. Fewer than two stored forecasts
// is not enough signal.
func AnalyzeAccuracy(forecasts []domain.MonteCarloForecast, history []domain.CycleMetrics) (Accuracy, error) {
	if len(forecasts) < 2 {
		return Accuracy{}, domain.ErrInsufficientSample
	}
	acc := Accuracy{Forecasts: len(forecasts)}

	var bias, mae float64
	var hit50, hit80, hit95 int
	for _, fc := range forecasts {
		actual, ok := earliestCovering(history, fc.RemainingPoints)
		if !ok {
			continue
		}
		acc.Matched++
		diff := fc.P50Date.Sub(actual).Hours() / 24
		bias += diff
		mae += math.Abs(diff)
		if !actual.After(fc.P50Date) {
			hit50++
		}
		if !actual.After(fc.P80Date) {
			hit80++
		}
		if !actual.After(fc.P95Date) {
			hit95++
		}
	}
	if acc.Matched == 0 {
		return acc, domain.ErrInsufficientSample
	}
	n := float64(acc.Matched)
	acc.ForecastBiasDays = bias / n
	acc.MeanAbsoluteErrorDays = mae / n
	acc.Within50Pct = float64(hit50) / n * 100
	acc.Within80Pct = float64(hit80) / n * 100
	acc.Within95Pct = float64(hit95) / n * 100
	return acc, nil
}

// earliestCovering returns the end date of the earliest-finishing cycle
// whose total scope was at least the forecasted remaining points.
func earliestCovering(history []domain.CycleMetrics, points float64) (time.Time, bool) {
	var best time.Time
	found := false
	for _, cm := range history {
		if cm.TotalStoryPoints < points {
			continue
		}
		if !found || cm.EndsAt.Before(best) {
			best = cm.EndsAt
			found = true
		}
	}
	return best, found
}
