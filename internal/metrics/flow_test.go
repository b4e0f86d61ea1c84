package metrics

import (
	"reflect"
	"testing"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
)

func fp(v float64) *float64 { return &v }
func sp(s string) *string   { return &s }
func tp(t time.Time) *time.Time { return &t }

// fixture: a two-week cycle with two completed issues, one mid-cycle
// addition still in flight.
func flowFixture(t *testing.T) (domain.Cycle, []domain.Issue, map[string]Timeline) {
	t.Helper()
	cycle := domain.Cycle{ID: "CYC-1", StartsAt: at(0), EndsAt: at(14)}
	issues := []domain.Issue{
		{ID: "A", CycleID: sp("CYC-1"), Estimate: fp(3), CreatedAt: at(0), CompletedAt: tp(at(5))},
		{ID: "B", CycleID: sp("CYC-1"), Estimate: fp(5), CreatedAt: at(0), CompletedAt: tp(at(6))},
		{ID: "C", CycleID: sp("CYC-1"), Estimate: fp(2), CreatedAt: at(3)},
	}
	timelines := map[string]Timeline{}
	histories := map[string][]domain.StateChange{
		"A": chain("A", at(1), "In Progress", "Done"),
		"B": {
			{IssueID: "B", FromState: "Backlog", ToState: "In Progress", At: at(2)},
			{IssueID: "B", FromState: "In Progress", ToState: "Done", At: at(6)},
		},
		"C": {
			{IssueID: "C", FromState: "Backlog", ToState: "In Progress", At: at(4)},
		},
	}
	for i, iss := range issues {
		tl, err := BuildTimeline(iss, histories[iss.ID], nil, at(20))
		if err != nil {
			t.Fatalf("fixture timeline %s: %v", iss.ID, err)
		}
		timelines[issues[i].ID] = tl
	}
	return cycle, issues, timelines
}

func TestBuildCycleFlowThroughputAndVelocity(t *testing.T) {
	cycle, issues, timelines := flowFixture(t)
	flow := BuildCycleFlow(cycle, issues, timelines, 0, DefaultConfig(), at(20))

	m := flow.Metrics
	if m.TotalStoryPoints != 10 {
		t.Fatalf("total points = %v, want 10", m.TotalStoryPoints)
	}
	if m.Throughput != 2 {
		t.Fatalf("throughput = %d, want 2", m.Throughput)
	}
	if m.Velocity != 8 || m.CompletedStoryPoints != 8 {
		t.Fatalf("velocity = %v completed = %v, want 8/8", m.Velocity, m.CompletedStoryPoints)
	}
	if m.CycleTimeP50Hours > m.CycleTimeP80Hours || m.CycleTimeP80Hours > m.CycleTimeP95Hours {
		t.Fatalf("cycle time percentiles not monotonic: %v %v %v",
			m.CycleTimeP50Hours, m.CycleTimeP80Hours, m.CycleTimeP95Hours)
	}
	if len(flow.CycleTimesHours) != 2 || len(flow.LeadTimesHours) != 2 {
		t.Fatalf("expected 2 completed distributions, got %d/%d", len(flow.CycleTimesHours), len(flow.LeadTimesHours))
	}
}

func TestBuildCycleFlowDeterministic(t *testing.T) {
	cycle, issues, timelines := flowFixture(t)
	a := BuildCycleFlow(cycle, issues, timelines, 1, DefaultConfig(), at(20))
	b := BuildCycleFlow(cycle, issues, timelines, 1, DefaultConfig(), at(20))
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("recomputation diverged:\n%+v\n%+v", a, b)
	}
}

func TestBuildCycleFlowScopeAdditions(t *testing.T) {
	cycle, issues, timelines := flowFixture(t)
	flow := BuildCycleFlow(cycle, issues, timelines, 0, DefaultConfig(), at(20))

	if len(flow.ScopeChanges) != 1 {
		t.Fatalf("scope changes = %d, want 1", len(flow.ScopeChanges))
	}
	sc := flow.ScopeChanges[0]
	if sc.DeltaPoints != 2 || !sc.At.Equal(at(3)) {
		t.Fatalf("scope change = %+v, want +2 points at day 3", sc)
	}
}

func TestBuildCycleFlowDailySeries(t *testing.T) {
	cycle, issues, timelines := flowFixture(t)
	flow := BuildCycleFlow(cycle, issues, timelines, 0, DefaultConfig(), at(20))

	if len(flow.Daily) != 15 {
		t.Fatalf("daily rows = %d, want 15", len(flow.Daily))
	}
	first, last := flow.Daily[0], flow.Daily[len(flow.Daily)-1]
	if first.ScopePoints != 8 {
		t.Fatalf("day 0 scope = %v, want 8 (C not yet created)", first.ScopePoints)
	}
	if last.ScopePoints != 10 || last.CompletedPoints != 8 {
		t.Fatalf("last day scope/completed = %v/%v, want 10/8", last.ScopePoints, last.CompletedPoints)
	}
	// B is worked days 2..5, C days 4..13: days 4 and 5 overlap
	byDay := map[int]int{}
	for i, row := range flow.Daily {
		byDay[i] = row.WIP
	}
	if byDay[4] != 2 || byDay[5] != 2 {
		t.Fatalf("WIP on days 4/5 = %d/%d, want 2/2", byDay[4], byDay[5])
	}
	if byDay[0] != 0 {
		t.Fatalf("WIP on day 0 = %d, want 0", byDay[0])
	}
}

func TestBuildCycleFlowWIPLimitBreaches(t *testing.T) {
	cycle, issues, timelines := flowFixture(t)
	cfg := DefaultConfig()
	cfg.WIPLimit = 1
	flow := BuildCycleFlow(cycle, issues, timelines, 0, cfg, at(20))
	if flow.Metrics.WIPLimitBreachDays != 2 {
		t.Fatalf("breach days = %d, want 2", flow.Metrics.WIPLimitBreachDays)
	}
}

func TestBuildCycleFlowDailyCappedAtToday(t *testing.T) {
	cycle, issues, timelines := flowFixture(t)
	flow := BuildCycleFlow(cycle, issues, timelines, 0, DefaultConfig(), at(6))
	if len(flow.Daily) != 7 {
		t.Fatalf("daily rows mid-cycle = %d, want 7", len(flow.Daily))
	}
}

func TestBuildCycleFlowIgnoresOtherCycles(t *testing.T) {
	cycle, issues, timelines := flowFixture(t)
	issues = append(issues, domain.Issue{
		ID: "X", CycleID: sp("CYC-9"), Estimate: fp(50), CreatedAt: at(0), CompletedAt: tp(at(4)),
	})
	flow := BuildCycleFlow(cycle, issues, timelines, 0, DefaultConfig(), at(20))
	if flow.Metrics.TotalStoryPoints != 10 {
		t.Fatalf("foreign-cycle issue leaked into scope: %v", flow.Metrics.TotalStoryPoints)
	}
}
