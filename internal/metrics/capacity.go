package metrics

import (
	"sort"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
	"github.com/aytch4k/linear-app-productivity-metrics/internal/stats"
)

// BuildUserMetrics computes per-user rollups for one cycle. Users with
// no completed work in the cycle get no row. The second return value
// lists users whose CycleCapacity row is missing: their utilization is
// omitted (nil), never assumed zero.
func BuildUserMetrics(cycle domain.Cycle, issues []domain.Issue, capacities []domain.CycleCapacity) ([]domain.UserMetrics, []string) {
	capacityByUser := map[string]float64{}
	for _, c := range capacities {
		if c.CycleID == cycle.ID {
			capacityByUser[c.UserID] = c.AvailableHours
		}
	}

	byUser := map[string][]domain.Issue{}
	for _, is := range issues {
		if is.CycleID == nil || *is.CycleID != cycle.ID || is.AssigneeID == nil {
			continue
		}
		byUser[*is.AssigneeID] = append(byUser[*is.AssigneeID], is)
	}

	userIDs := make([]string, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	var rows []domain.UserMetrics
	var missingCapacity []string
	for _, userID := range userIDs {
		assigned := byUser[userID]

		var completionHours []float64
		row := domain.UserMetrics{CycleID: cycle.ID, UserID: userID}
		for _, is := range assigned {
			if !completedWithin(is, cycle.StartsAt, cycle.EndsAt) {
				continue
			}
			row.StoryPointsDone += points(is)
			completionHours = append(completionHours, is.CompletedAt.Sub(is.CreatedAt).Hours())
		}
		if len(completionHours) == 0 {
			continue
		}
		row.Velocity = row.StoryPointsDone
		row.AvgCompletionHours = stats.Mean(completionHours)

		if available, ok := capacityByUser[userID]; ok && available > 0 {
			// Actual hours logged on the user's cycle issues; issues
			// without logged hours stay out of the numerator. Over 100%
			// reports overcommitment, it is not clamped or rejected.
			var actual float64
			for _, is := range assigned {
				if is.ActualHours != nil {
					actual += *is.ActualHours
				}
			}
			utilization := actual / available
			row.CapacityUtilization = &utilization
		} else {
			missingCapacity = append(missingCapacity, userID)
		}
		rows = append(rows, row)
	}
	return rows, missingCapacity
}

// EfficiencyRatio is ideal over actual hours across completed issues.
// Issues missing either figure are excluded from both sides so a bare
// estimate cannot skew the ratio; nil when nothing qualifies.
func EfficiencyRatio(issues []domain.Issue) *float64 {
	var ideal, actual float64
	for _, is := range issues {
		if is.CompletedAt == nil || is.IdealHours == nil || is.ActualHours == nil {
			continue
		}
		ideal += *is.IdealHours
		actual += *is.ActualHours
	}
	if actual == 0 {
		return nil
	}
	ratio := ideal / actual
	return &ratio
}

// VelocityTrendPoint is one cycle on the velocity trend series: raw
// velocity, its rolling window-3 mean, and the least-squares slope of
// that window.
type VelocityTrendPoint struct {
	CycleID         string    `json:"cycle_id"`
	StartsAt        time.Time `json:"starts_at"`
	Velocity        float64   `json:"velocity"`
	RollingVelocity float64   `json:"rolling_velocity"`
	Trend           float64   `json:"trend"`
}

// VelocityTrend computes the rolling velocity series over historical
// cycle metrics ordered by start date.
func VelocityTrend(history []domain.CycleMetrics) []VelocityTrendPoint {
	if len(history) < 2 {
		return nil
	}
	sorted := make([]domain.CycleMetrics, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartsAt.Before(sorted[j].StartsAt) })

	out := make([]VelocityTrendPoint, 0, len(sorted))
	for i, cm := range sorted {
		lo := i - 2
		if lo < 0 {
			lo = 0
		}
		window := make([]float64, 0, 3)
		for _, w := range sorted[lo : i+1] {
			window = append(window, w.Velocity)
		}
		out = append(out, VelocityTrendPoint{
			CycleID:         cm.CycleID,
			StartsAt:        cm.StartsAt,
			Velocity:        cm.Velocity,
			RollingVelocity: stats.Mean(window),
			Trend:           stats.Slope(window),
		})
	}
	return out
}
