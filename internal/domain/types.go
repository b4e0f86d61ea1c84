package domain

import "time"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Cycle struct {
	ID       string
	Number   int
	Name     string
	TeamID   string
	StartsAt time.Time
	EndsAt   time.Time
}

type Issue struct {
	ID          string
	Title       string
	State       string
	Priority    int
	Estimate    *float64 // story points
	IdealHours  *float64
	ActualHours *float64
	CycleID     *string
	AssigneeID  *string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// StateChange is one entry of an issue's status history. Append-only;
// per issue the to-states read in timestamp order reconstruct the full
// status history.
type StateChange struct {
	IssueID   string
	FromState string
	ToState   string
	At        time.Time
}

// BlockedPeriod marks a span during which an issue was flagged blocked.
// EndedAt is nil while the issue is still blocked at sync time. Periods
// for the same issue never overlap.
type BlockedPeriod struct {
	IssueID   string
	StartedAt time.Time
	EndedAt   *time.Time
}

type CycleCapacity struct {
	CycleID        string  `json:"cycle_id"`
	UserID         string  `json:"user_id"`
	AvailableHours float64 `json:"available_hours"`
}

// Derived rows below are owned by the aggregators: recomputable from the
// source tables at any time, replaced per scope key, never hand-edited.

type CycleMetrics struct {
	CycleID              string    `json:"cycle_id"`
	TotalStoryPoints     float64   `json:"total_story_points"`
	CompletedStoryPoints float64   `json:"completed_story_points"`
	Throughput           int       `json:"throughput"`
	Velocity             float64   `json:"velocity"`
	AvgCycleTimeHours    float64   `json:"avg_cycle_time_hours"`
	CycleTimeP50Hours    float64   `json:"cycle_time_p50_hours"`
	CycleTimeP80Hours    float64   `json:"cycle_time_p80_hours"`
	CycleTimeP95Hours    float64   `json:"cycle_time_p95_hours"`
	LeadTimeP50Hours     float64   `json:"lead_time_p50_hours"`
	LeadTimeP80Hours     float64   `json:"lead_time_p80_hours"`
	LeadTimeP95Hours     float64   `json:"lead_time_p95_hours"`
	EfficiencyRatio      *float64  `json:"efficiency_ratio"` // nil when no completed issue carries both ideal and actual hours
	FlaggedIssues        int       `json:"flagged_issues"`   // issues skipped for inconsistent history
	WIPLimitBreachDays   int       `json:"wip_limit_breach_days"`
	StartsAt             time.Time `json:"starts_at"`
	EndsAt               time.Time `json:"ends_at"`
}

type UserMetrics struct {
	CycleID             string   `json:"cycle_id"`
	UserID              string   `json:"user_id"`
	StoryPointsDone     float64  `json:"story_points_done"`
	Velocity            float64  `json:"velocity"`
	AvgCompletionHours  float64  `json:"avg_completion_hours"`
	CapacityUtilization *float64 `json:"capacity_utilization"` // nil when the capacity row is missing
}

type DailyMetrics struct {
	CycleID             string    `json:"cycle_id"`
	Day                 time.Time `json:"day"`
	WIP                 int       `json:"wip"`
	RemainingIdealHours float64   `json:"remaining_ideal_hours"`
	IdealTrendHours     float64   `json:"ideal_trend_hours"`
	CompletedPoints     float64   `json:"completed_points"`
	ScopePoints         float64   `json:"scope_points"`
}

// ScopeChange records a mid-cycle scope delta with its timestamp.
type ScopeChange struct {
	CycleID     string    `json:"cycle_id"`
	At          time.Time `json:"at"`
	DeltaPoints float64   `json:"delta_points"`
}

type MonteCarloForecast struct {
	RunID           string    `json:"run_id"`
	SimulatedAt     time.Time `json:"simulated_at"`
	RemainingPoints float64   `json:"remaining_points"`
	TrialCount      int       `json:"trial_count"`
	SampleCycles    int       `json:"sample_cycles"`
	LowConfidence   bool      `json:"low_confidence"`
	P50Cycles       float64   `json:"p50_cycles"`
	P80Cycles       float64   `json:"p80_cycles"`
	P95Cycles       float64   `json:"p95_cycles"`
	P50Date         time.Time `json:"p50_date"`
	P80Date         time.Time `json:"p80_date"`
	P95Date         time.Time `json:"p95_date"`
	ExpectedDate    time.Time `json:"expected_date"`
	EarliestDate    time.Time `json:"earliest_date"`
	LatestDate      time.Time `json:"latest_date"`
}
