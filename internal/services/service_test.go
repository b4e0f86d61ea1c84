package services

import (
    "testing"
    "time"

    "github.com/aytch4k/linear-app-productivity-metrics/internal/adapters/linear"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/config"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
)

func teamFixture() []linear.Team {
    return []linear.Team{
        {ID: "t-1", Key: "ENG", Name: "Engineering"},
        {ID: "t-2", Key: "OPS", Name: "Operations"},
    }
}

var day0 = time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)

func d(days int) time.Time { return day0.Add(time.Duration(days) * 24 * time.Hour) }

func TestBlockedFromHistory(t *testing.T) {
    history := []domain.StateChange{
        {IssueID: "A", FromState: "Backlog", ToState: "In Progress", At: d(0)},
        {IssueID: "A", FromState: "In Progress", ToState: "Blocked", At: d(2)},
        {IssueID: "A", FromState: "Blocked", ToState: "In Progress", At: d(4)},
        {IssueID: "A", FromState: "In Progress", ToState: "Blocked", At: d(6)},
    }
    periods := blockedFromHistory("A", history, d(10))
    if len(periods) != 2 {
        t.Fatalf("periods = %d, want 2", len(periods))
    }
    first := periods[0]
    if !first.StartedAt.Equal(d(2)) || first.EndedAt == nil || !first.EndedAt.Equal(d(4)) {
        t.Fatalf("first period = %+v, want [day2, day4]", first)
    }
    second := periods[1]
    if !second.StartedAt.Equal(d(6)) || second.EndedAt != nil {
        t.Fatalf("second period = %+v, want open since day 6", second)
    }
}

func TestBlockedFromHistoryNoBlocks(t *testing.T) {
    history := []domain.StateChange{
        {IssueID: "A", FromState: "Backlog", ToState: "In Progress", At: d(0)},
        {IssueID: "A", FromState: "In Progress", ToState: "Done", At: d(3)},
    }
    if got := blockedFromHistory("A", history, d(10)); len(got) != 0 {
        t.Fatalf("expected no blocked periods, got %+v", got)
    }
}

func TestDeriveHours(t *testing.T) {
    est := 3.0
    iss := domain.Issue{ID: "A", Estimate: &est, CreatedAt: d(0)}
    history := []domain.StateChange{
        {IssueID: "A", FromState: "Backlog", ToState: "In Progress", At: d(1)},
        {IssueID: "A", FromState: "In Progress", ToState: "Done", At: d(3)},
    }
    s := &Service{cfg: config.Config{IdealHoursPerPoint: 4}}
    s.deriveHours(&iss, history, nil, d(10))

    if iss.IdealHours == nil || *iss.IdealHours != 12 {
        t.Fatalf("ideal hours = %v, want 12", iss.IdealHours)
    }
    if iss.ActualHours == nil || *iss.ActualHours != 48 {
        t.Fatalf("actual hours = %v, want 48 (two active days)", iss.ActualHours)
    }
}

func TestDeriveHoursBrokenHistoryLeavesNil(t *testing.T) {
    iss := domain.Issue{ID: "A", CreatedAt: d(0)}
    history := []domain.StateChange{
        {IssueID: "A", FromState: "Backlog", ToState: "Todo", At: d(1)},
        {IssueID: "A", FromState: "In Progress", ToState: "Done", At: d(2)},
    }
    s := &Service{cfg: config.Config{IdealHoursPerPoint: 4}}
    s.deriveHours(&iss, history, nil, d(10))
    if iss.ActualHours != nil {
        t.Fatalf("actual hours should stay nil for unreplayable history, got %v", *iss.ActualHours)
    }
}

func TestFilterTeams(t *testing.T) {
    s := &Service{cfg: config.Config{LinearTeamIDs: []string{"ENG"}}}
    teams := s.filterTeams(teamFixture())
    if len(teams) != 1 || teams[0].Key != "ENG" {
        t.Fatalf("filtered teams = %+v, want ENG only", teams)
    }

    s = &Service{}
    if got := s.filterTeams(teamFixture()); len(got) != 2 {
        t.Fatalf("no filter should keep all teams, got %+v", got)
    }
}
