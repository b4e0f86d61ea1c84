package repo

import (
	"context"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Source tables: synced from Linear, idempotent upserts keyed on the
// remote identifiers. Issues are never deleted; history stays.

func (r *Repository) UpsertUsers(ctx context.Context, users []domain.User) error {
	if len(users) == 0 { return nil }
	batch := &pgx.Batch{}
	const q = `INSERT INTO users(id, name, email) VALUES($1,$2,$3)
		ON CONFLICT(id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email`
	for _, u := range users { batch.Queue(q, u.ID, u.Name, u.Email) }
	return r.sendBatch(ctx, batch, len(users))
}

func (r *Repository) UpsertCycles(ctx context.Context, cycles []domain.Cycle) error {
	if len(cycles) == 0 { return nil }
	batch := &pgx.Batch{}
	const q = `INSERT INTO cycles(id, number, name, team_id, starts_at, ends_at)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT(id) DO UPDATE SET
			number=EXCLUDED.number,
			name=EXCLUDED.name,
			team_id=EXCLUDED.team_id,
			starts_at=EXCLUDED.starts_at,
			ends_at=EXCLUDED.ends_at`
	for _, c := range cycles { batch.Queue(q, c.ID, c.Number, c.Name, c.TeamID, c.StartsAt, c.EndsAt) }
	return r.sendBatch(ctx, batch, len(cycles))
}

func (r *Repository) UpsertIssue(ctx context.Context, i domain.Issue) error {
	const q = `
		INSERT INTO issues(id, title, state, priority, estimate, ideal_hours, actual_hours,
			cycle_id, assignee_id, created_at, completed_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT(id) DO UPDATE SET
			title=EXCLUDED.title,
			state=EXCLUDED.state,
			priority=EXCLUDED.priority,
			estimate=EXCLUDED.estimate,
			ideal_hours=EXCLUDED.ideal_hours,
			actual_hours=EXCLUDED.actual_hours,
			cycle_id=EXCLUDED.cycle_id,
			assignee_id=EXCLUDED.assignee_id,
			created_at=EXCLUDED.created_at,
			completed_at=EXCLUDED.completed_at`
	_, err := r.db.Pool.Exec(ctx, q, i.ID, i.Title, i.State, i.Priority, i.Estimate, i.IdealHours, i.ActualHours,
		i.CycleID, i.AssigneeID, i.CreatedAt, i.CompletedAt)
	return err
}

func (r *Repository) BulkInsertStateChanges(ctx context.Context, sc []domain.StateChange) error {
	if len(sc) == 0 { return nil }
	batch := &pgx.Batch{}
	const q = `INSERT INTO state_changes(issue_id, from_state, to_state, at)
		VALUES($1,$2,$3,$4)
		ON CONFLICT (issue_id, from_state, to_state, at) DO NOTHING`
	for _, e := range sc { batch.Queue(q, e.IssueID, e.FromState, e.ToState, e.At) }
	return r.sendBatch(ctx, batch, len(sc))
}

// UpsertBlockedPeriod opens or closes a blocked span. A period is keyed
// by (issue, start); observing the unblock sets ended_at on the open row.
func (r *Repository) UpsertBlockedPeriod(ctx context.Context, bp domain.BlockedPeriod) error {
	const q = `INSERT INTO blocked_periods(issue_id, started_at, ended_at) VALUES($1,$2,$3)
		ON CONFLICT (issue_id, started_at) DO UPDATE SET ended_at=EXCLUDED.ended_at`
	_, err := r.db.Pool.Exec(ctx, q, bp.IssueID, bp.StartedAt, bp.EndedAt)
	return err
}

// SeedCycleCapacities inserts default capacity rows without touching
// existing ones, so hand-tuned availability survives resyncs.
func (r *Repository) SeedCycleCapacities(ctx context.Context, caps []domain.CycleCapacity) error {
	if len(caps) == 0 { return nil }
	batch := &pgx.Batch{}
	const q = `INSERT INTO cycle_capacities(cycle_id, user_id, available_hours) VALUES($1,$2,$3)
		ON CONFLICT (cycle_id, user_id) DO NOTHING`
	for _, c := range caps { batch.Queue(q, c.CycleID, c.UserID, c.AvailableHours) }
	return r.sendBatch(ctx, batch, len(caps))
}

func (r *Repository) UpsertCycleCapacities(ctx context.Context, caps []domain.CycleCapacity) error {
	if len(caps) == 0 { return nil }
	batch := &pgx.Batch{}
	const q = `INSERT INTO cycle_capacities(cycle_id, user_id, available_hours) VALUES($1,$2,$3)
		ON CONFLICT (cycle_id, user_id) DO UPDATE SET available_hours=EXCLUDED.available_hours`
	for _, c := range caps { batch.Queue(q, c.CycleID, c.UserID, c.AvailableHours) }
	return r.sendBatch(ctx, batch, len(caps))
}

func (r *Repository) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil { return err }
	}
	return nil
}

// ---- Loaders for the aggregation run ----

func (r *Repository) ListCycles(ctx context.Context) ([]domain.Cycle, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, number, COALESCE(name,''), COALESCE(team_id,''), starts_at, ends_at FROM cycles ORDER BY starts_at`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.Cycle
	for rows.Next() {
		var c domain.Cycle
		if err := rows.Scan(&c.ID, &c.Number, &c.Name, &c.TeamID, &c.StartsAt, &c.EndsAt); err != nil { return nil, err }
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) CycleExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cycles WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

func (r *Repository) ListIssues(ctx context.Context) ([]domain.Issue, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, COALESCE(title,''), COALESCE(state,''), COALESCE(priority,0),
		estimate, ideal_hours, actual_hours, cycle_id, assignee_id, created_at, completed_at
		FROM issues ORDER BY id`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.Issue
	for rows.Next() {
		var i domain.Issue
		if err := rows.Scan(&i.ID, &i.Title, &i.State, &i.Priority, &i.Estimate, &i.IdealHours, &i.ActualHours,
			&i.CycleID, &i.AssigneeID, &i.CreatedAt, &i.CompletedAt); err != nil { return nil, err }
		out = append(out, i)
	}
	return out, rows.Err()
}

// ListStateChanges returns every issue's status history grouped by
// issue, timestamp-ordered within each group.
func (r *Repository) ListStateChanges(ctx context.Context) (map[string][]domain.StateChange, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT issue_id, COALESCE(from_state,''), COALESCE(to_state,''), at
		FROM state_changes ORDER BY issue_id, at`)
	if err != nil { return nil, err }
	defer rows.Close()
	out := map[string][]domain.StateChange{}
	for rows.Next() {
		var sc domain.StateChange
		if err := rows.Scan(&sc.IssueID, &sc.FromState, &sc.ToState, &sc.At); err != nil { return nil, err }
		out[sc.IssueID] = append(out[sc.IssueID], sc)
	}
	return out, rows.Err()
}

func (r *Repository) ListBlockedPeriods(ctx context.Context) (map[string][]domain.BlockedPeriod, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT issue_id, started_at, ended_at FROM blocked_periods ORDER BY issue_id, started_at`)
	if err != nil { return nil, err }
	defer rows.Close()
	out := map[string][]domain.BlockedPeriod{}
	for rows.Next() {
		var bp domain.BlockedPeriod
		if err := rows.Scan(&bp.IssueID, &bp.StartedAt, &bp.EndedAt); err != nil { return nil, err }
		out[bp.IssueID] = append(out[bp.IssueID], bp)
	}
	return out, rows.Err()
}

func (r *Repository) ListCycleCapacities(ctx context.Context) ([]domain.CycleCapacity, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT cycle_id, user_id, available_hours FROM cycle_capacities`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.CycleCapacity
	for rows.Next() {
		var c domain.CycleCapacity
		if err := rows.Scan(&c.CycleID, &c.UserID, &c.AvailableHours); err != nil { return nil, err }
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, COALESCE(name,''), COALESCE(email,'') FROM users ORDER BY name`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil { return nil, err }
		out = append(out, u)
	}
	return out, rows.Err()
}

// RemainingPoints sums the estimates of issues that are neither
// completed nor in a terminal state: the scope the forecaster simulates.
func (r *Repository) RemainingPoints(ctx context.Context) (float64, error) {
	var pts float64
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(SUM(estimate),0) FROM issues
		WHERE completed_at IS NULL AND lower(state) NOT LIKE '%cancel%'`).Scan(&pts)
	return pts, err
}
