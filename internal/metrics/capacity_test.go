package metrics

import (
	"testing"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
)

func TestBuildUserMetricsUtilization(t *testing.T) {
	cycle := domain.Cycle{ID: "CYC-1", StartsAt: at(0), EndsAt: at(14)}
	issues := []domain.Issue{
		{ID: "A", CycleID: sp("CYC-1"), AssigneeID: sp("u1"), Estimate: fp(3),
			ActualHours: fp(20), CreatedAt: at(0), CompletedAt: tp(at(5))},
		{ID: "B", CycleID: sp("CYC-1"), AssigneeID: sp("u2"), Estimate: fp(5),
			ActualHours: fp(10), CreatedAt: at(0), CompletedAt: tp(at(6))},
		{ID: "C", CycleID: sp("CYC-1"), AssigneeID: sp("u3"), Estimate: fp(2), CreatedAt: at(0)},
	}
	capacities := []domain.CycleCapacity{
		{CycleID: "CYC-1", UserID: "u1", AvailableHours: 40},
	}

	rows, missing := BuildUserMetrics(cycle, issues, capacities)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (u3 completed nothing)", len(rows))
	}
	if rows[0].UserID != "u1" || rows[0].CapacityUtilization == nil {
		t.Fatalf("u1 row = %+v, want utilization set", rows[0])
	}
	if got := *rows[0].CapacityUtilization; got != 0.5 {
		t.Fatalf("u1 utilization = %v, want 0.5", got)
	}
	if rows[1].UserID != "u2" || rows[1].CapacityUtilization != nil {
		t.Fatalf("u2 row = %+v, want nil utilization", rows[1])
	}
	if len(missing) != 1 || missing[0] != "u2" {
		t.Fatalf("missing capacity = %v, want [u2]", missing)
	}
	if rows[0].StoryPointsDone != 3 || rows[0].Velocity != 3 {
		t.Fatalf("u1 points done = %v velocity = %v, want 3/3", rows[0].StoryPointsDone, rows[0].Velocity)
	}
}

func TestBuildUserMetricsOvercommitmentReportedAsIs(t *testing.T) {
	cycle := domain.Cycle{ID: "CYC-1", StartsAt: at(0), EndsAt: at(14)}
	issues := []domain.Issue{
		{ID: "A", CycleID: sp("CYC-1"), AssigneeID: sp("u1"), Estimate: fp(3),
			ActualHours: fp(60), CreatedAt: at(0), CompletedAt: tp(at(5))},
	}
	capacities := []domain.CycleCapacity{
		{CycleID: "CYC-1", UserID: "u1", AvailableHours: 40},
	}
	rows, _ := BuildUserMetrics(cycle, issues, capacities)
	if len(rows) != 1 || rows[0].CapacityUtilization == nil {
		t.Fatalf("expected one row with utilization, got %+v", rows)
	}
	if got := *rows[0].CapacityUtilization; got != 1.5 {
		t.Fatalf("overcommitted utilization = %v, want 1.5 unclamped", got)
	}
}

func TestEfficiencyRatioExcludesPartialRows(t *testing.T) {
	issues := []domain.Issue{
		{ID: "A", IdealHours: fp(10), ActualHours: fp(20), CompletedAt: tp(at(5))},
		{ID: "B", IdealHours: fp(99), CompletedAt: tp(at(6))},        // no actual: excluded
		{ID: "C", IdealHours: fp(99), ActualHours: fp(1)},            // not completed: excluded
	}
	r := EfficiencyRatio(issues)
	if r == nil || *r != 0.5 {
		t.Fatalf("efficiency ratio = %v, want 0.5", r)
	}
	if r := EfficiencyRatio(issues[1:]); r != nil {
		t.Fatalf("ratio with no qualifying issues = %v, want nil", r)
	}
}

func TestVelocityTrendRollingWindow(t *testing.T) {
	history := []domain.CycleMetrics{
		{CycleID: "c4", Velocity: 16, StartsAt: at(42)},
		{CycleID: "c1", Velocity: 10, StartsAt: at(0)},
		{CycleID: "c3", Velocity: 14, StartsAt: at(28)},
		{CycleID: "c2", Velocity: 12, StartsAt: at(14)},
	}
	trend := VelocityTrend(history)
	if len(trend) != 4 {
		t.Fatalf("trend points = %d, want 4", len(trend))
	}
	if trend[0].CycleID != "c1" || trend[3].CycleID != "c4" {
		t.Fatalf("trend not ordered by start date: %+v", trend)
	}
	if trend[0].RollingVelocity != 10 {
		t.Fatalf("first rolling velocity = %v, want 10", trend[0].RollingVelocity)
	}
	if trend[3].RollingVelocity != 14 {
		t.Fatalf("window-3 rolling velocity = %v, want 14", trend[3].RollingVelocity)
	}
	if trend[3].Trend != 2 {
		t.Fatalf("window slope = %v, want 2", trend[3].Trend)
	}
}

func TestVelocityTrendNeedsTwoCycles(t *testing.T) {
	if got := VelocityTrend([]domain.CycleMetrics{{CycleID: "c1", Velocity: 10}}); got != nil {
		t.Fatalf("single-cycle trend = %+v, want nil", got)
	}
}
