package metrics

import (
	"sort"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
	"github.com/aytch4k/linear-app-productivity-metrics/internal/stats"
)

// Config carries the aggregation tunables explicitly so tests can vary
// them per call instead of reaching into ambient state.
type Config struct {
	WIPLimit int
}

func DefaultConfig() Config {
	return Config{WIPLimit: 10}
}

// CycleFlow is everything the flow aggregator derives for one cycle:
// the rollup row, the per-day series, the mid-cycle scope deltas and the
// raw duration distributions the forecaster samples from.
type CycleFlow struct {
	Metrics         domain.CycleMetrics
	Daily           []domain.DailyMetrics
	ScopeChanges    []domain.ScopeChange
	CycleTimesHours []float64
	LeadTimesHours  []float64
}

// BuildCycleFlow turns per-issue timelines into the per-cycle and
// per-day rollups. Pure and deterministic: identical inputs yield
// bit-for-bit identical output. Issues absent from timelines (flagged
// for inconsistent history) still count toward scope but are excluded
// from cycle-time statistics.
func BuildCycleFlow(cycle domain.Cycle, issues []domain.Issue, timelines map[string]Timeline, flagged int, cfg Config, now time.Time) CycleFlow {
	scoped := make([]domain.Issue, 0, len(issues))
	for _, is := range issues {
		if is.CycleID != nil && *is.CycleID == cycle.ID {
			scoped = append(scoped, is)
		}
	}
	sort.Slice(scoped, func(i, j int) bool { return scoped[i].ID < scoped[j].ID })

	out := CycleFlow{
		Metrics: domain.CycleMetrics{
			CycleID:       cycle.ID,
			FlaggedIssues: flagged,
			StartsAt:      cycle.StartsAt,
			EndsAt:        cycle.EndsAt,
		},
	}

	var totalIdealHours float64
	for _, is := range scoped {
		out.Metrics.TotalStoryPoints += points(is)
		if is.IdealHours != nil {
			totalIdealHours += *is.IdealHours
		}
	}

	// Throughput and velocity count completions inside the cycle window.
	for _, is := range scoped {
		if !completedWithin(is, cycle.StartsAt, cycle.EndsAt) {
			continue
		}
		out.Metrics.Throughput++
		out.Metrics.CompletedStoryPoints += points(is)
		out.Metrics.Velocity += points(is)

		out.LeadTimesHours = append(out.LeadTimesHours, is.CompletedAt.Sub(is.CreatedAt).Hours())
		if tl, ok := timelines[is.ID]; ok && tl.StartedAt != nil && tl.CompletedAt != nil {
			out.CycleTimesHours = append(out.CycleTimesHours, tl.ActiveCycleTime().Hours())
		}
	}
	sort.Float64s(out.CycleTimesHours)
	sort.Float64s(out.LeadTimesHours)

	out.Metrics.AvgCycleTimeHours = stats.Mean(out.CycleTimesHours)
	out.Metrics.CycleTimeP50Hours = stats.PercentileSorted(out.CycleTimesHours, 50)
	out.Metrics.CycleTimeP80Hours = stats.PercentileSorted(out.CycleTimesHours, 80)
	out.Metrics.CycleTimeP95Hours = stats.PercentileSorted(out.CycleTimesHours, 95)
	out.Metrics.LeadTimeP50Hours = stats.PercentileSorted(out.LeadTimesHours, 50)
	out.Metrics.LeadTimeP80Hours = stats.PercentileSorted(out.LeadTimesHours, 80)
	out.Metrics.LeadTimeP95Hours = stats.PercentileSorted(out.LeadTimesHours, 95)
	out.Metrics.EfficiencyRatio = EfficiencyRatio(scoped)

	out.ScopeChanges = scopeChanges(cycle, scoped)
	out.Daily = dailySeries(cycle, scoped, timelines, totalIdealHours, now)
	if cfg.WIPLimit > 0 {
		for _, row := range out.Daily {
			if row.WIP > cfg.WIPLimit {
				out.Metrics.WIPLimitBreachDays++
			}
		}
	}
	return out
}

func points(is domain.Issue) float64 {
	if is.Estimate == nil {
		return 0
	}
	return *is.Estimate
}

func completedWithin(is domain.Issue, start, end time.Time) bool {
	return is.CompletedAt != nil && !is.CompletedAt.Before(start) && is.CompletedAt.Before(end)
}

// scopeChanges records one delta per issue that entered scope after the
// cycle started. Removals are not reconstructable from a snapshot; only
// additions are tracked.
func scopeChanges(cycle domain.Cycle, scoped []domain.Issue) []domain.ScopeChange {
	var out []domain.ScopeChange
	for _, is := range scoped {
		if is.CreatedAt.After(cycle.StartsAt) && points(is) > 0 {
			out = append(out, domain.ScopeChange{
				CycleID:     cycle.ID,
				At:          is.CreatedAt,
				DeltaPoints: points(is),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func dailySeries(cycle domain.Cycle, scoped []domain.Issue, timelines map[string]Timeline, totalIdealHours float64, now time.Time) []domain.DailyMetrics {
	startDay := day(cycle.StartsAt)
	endDay := day(cycle.EndsAt)
	if today := day(now); today.Before(endDay) {
		endDay = today
	}
	cycleSpan := cycle.EndsAt.Sub(cycle.StartsAt)
	if cycleSpan <= 0 {
		return nil
	}

	var out []domain.DailyMetrics
	for d := startDay; !d.After(endDay); d = d.Add(24 * time.Hour) {
		dayEnd := d.Add(24 * time.Hour)
		row := domain.DailyMetrics{CycleID: cycle.ID, Day: d}

		elapsed := dayEnd.Sub(cycle.StartsAt).Seconds() / cycleSpan.Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > 1 {
			elapsed = 1
		}
		row.IdealTrendHours = totalIdealHours * (1 - elapsed)

		for _, is := range scoped {
			if is.CreatedAt.After(dayEnd) {
				continue // not yet in scope on this day
			}
			row.ScopePoints += points(is)
			doneByDay := is.CompletedAt != nil && !is.CompletedAt.After(dayEnd)
			if doneByDay {
				row.CompletedPoints += points(is)
			} else if is.IdealHours != nil {
				row.RemainingIdealHours += *is.IdealHours
			}
			if tl, ok := timelines[is.ID]; ok && tl.InProgressOn(d) {
				row.WIP++
			}
		}
		out = append(out, row)
	}
	return out
}

func day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
