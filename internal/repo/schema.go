package repo

import "context"

const schema = `
-- Source tables, synced from Linear
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT,
    email TEXT
);

CREATE TABLE IF NOT EXISTS cycles (
    id TEXT PRIMARY KEY,
    number INT NOT NULL DEFAULT 0,
    name TEXT,
    team_id TEXT,
    starts_at TIMESTAMPTZ NOT NULL,
    ends_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    title TEXT,
    state TEXT,
    priority INT,
    estimate DOUBLE PRECISION,
    ideal_hours DOUBLE PRECISION,
    actual_hours DOUBLE PRECISION,
    cycle_id TEXT,
    assignee_id TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS state_changes (
    issue_id TEXT NOT NULL,
    from_state TEXT NOT NULL DEFAULT '',
    to_state TEXT NOT NULL,
    at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (issue_id, from_state, to_state, at)
);
CREATE INDEX IF NOT EXISTS idx_state_changes_issue ON state_changes(issue_id, at);

CREATE TABLE IF NOT EXISTS blocked_periods (
    issue_id TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at TIMESTAMPTZ,
    PRIMARY KEY (issue_id, started_at)
);

CREATE TABLE IF NOT EXISTS cycle_capacities (
    cycle_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    available_hours DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (cycle_id, user_id)
);

-- Derived tables, replaced wholesale per cycle on every recompute
CREATE TABLE IF NOT EXISTS cycle_metrics (
    cycle_id TEXT PRIMARY KEY,
    total_story_points DOUBLE PRECISION NOT NULL DEFAULT 0,
    completed_story_points DOUBLE PRECISION NOT NULL DEFAULT 0,
    throughput INT NOT NULL DEFAULT 0,
    velocity DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_cycle_time_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    cycle_time_p50_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    cycle_time_p80_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    cycle_time_p95_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    lead_time_p50_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    lead_time_p80_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    lead_time_p95_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    efficiency_ratio DOUBLE PRECISION,
    flagged_issues INT NOT NULL DEFAULT 0,
    wip_limit_breach_days INT NOT NULL DEFAULT 0,
    starts_at TIMESTAMPTZ NOT NULL,
    ends_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS user_metrics (
    cycle_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    story_points_done DOUBLE PRECISION NOT NULL DEFAULT 0,
    velocity DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_completion_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    capacity_utilization DOUBLE PRECISION,
    PRIMARY KEY (cycle_id, user_id)
);

CREATE TABLE IF NOT EXISTS daily_metrics (
    cycle_id TEXT NOT NULL,
    day TIMESTAMPTZ NOT NULL,
    wip INT NOT NULL DEFAULT 0,
    remaining_ideal_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    ideal_trend_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    completed_points DOUBLE PRECISION NOT NULL DEFAULT 0,
    scope_points DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (cycle_id, day)
);

CREATE TABLE IF NOT EXISTS scope_changes (
    cycle_id TEXT NOT NULL,
    at TIMESTAMPTZ NOT NULL,
    delta_points DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scope_changes_cycle ON scope_changes(cycle_id, at);

CREATE TABLE IF NOT EXISTS monte_carlo_forecasts (
    run_id TEXT PRIMARY KEY,
    simulated_at TIMESTAMPTZ NOT NULL,
    remaining_points DOUBLE PRECISION NOT NULL,
    trial_count INT NOT NULL,
    sample_cycles INT NOT NULL,
    low_confidence BOOLEAN NOT NULL DEFAULT false,
    p50_cycles DOUBLE PRECISION NOT NULL,
    p80_cycles DOUBLE PRECISION NOT NULL,
    p95_cycles DOUBLE PRECISION NOT NULL,
    p50_date TIMESTAMPTZ NOT NULL,
    p80_date TIMESTAMPTZ NOT NULL,
    p95_date TIMESTAMPTZ NOT NULL,
    expected_date TIMESTAMPTZ NOT NULL,
    earliest_date TIMESTAMPTZ NOT NULL,
    latest_date TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS job_runs (
    id BIGSERIAL PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    issues_synced INT,
    cycles_computed INT,
    flagged_issues INT,
    success BOOLEAN,
    error TEXT
);
`

// EnsureSchema creates any missing tables on startup. Idempotent.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, schema)
	return err
}
