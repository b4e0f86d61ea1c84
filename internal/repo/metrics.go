package repo

import (
	"context"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
	"github.com/aytch4k/linear-app-productivity-metrics/internal/metrics"
	"github.com/jackc/pgx/v5"
)

// Derived tables are replaced per scope key (cycle id, or forecast run)
// inside a transaction, so recomputation is idempotent and an
// interrupted run never leaves a cycle half-written.

func (r *Repository) ReplaceCycleDerived(ctx context.Context, flow metrics.CycleFlow, users []domain.UserMetrics) error {
	cycleID := flow.Metrics.CycleID
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil { return err }
	defer tx.Rollback(ctx)

	for _, table := range []string{"cycle_metrics", "user_metrics", "daily_metrics", "scope_changes"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE cycle_id=$1`, cycleID); err != nil {
			return err
		}
	}

	cm := flow.Metrics
	if _, err := tx.Exec(ctx, `INSERT INTO cycle_metrics(cycle_id, total_story_points, completed_story_points,
			throughput, velocity, avg_cycle_time_hours,
			cycle_time_p50_hours, cycle_time_p80_hours, cycle_time_p95_hours,
			lead_time_p50_hours, lead_time_p80_hours, lead_time_p95_hours,
			efficiency_ratio, flagged_issues, wip_limit_breach_days, starts_at, ends_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		cm.CycleID, cm.TotalStoryPoints, cm.CompletedStoryPoints,
		cm.Throughput, cm.Velocity, cm.AvgCycleTimeHours,
		cm.CycleTimeP50Hours, cm.CycleTimeP80Hours, cm.CycleTimeP95Hours,
		cm.LeadTimeP50Hours, cm.LeadTimeP80Hours, cm.LeadTimeP95Hours,
		cm.EfficiencyRatio, cm.FlaggedIssues, cm.WIPLimitBreachDays, cm.StartsAt, cm.EndsAt); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	n := 0
	const uq = `INSERT INTO user_metrics(cycle_id, user_id, story_points_done, velocity, avg_completion_hours, capacity_utilization)
		VALUES($1,$2,$3,$4,$5,$6)`
	for _, um := range users {
		batch.Queue(uq, um.CycleID, um.UserID, um.StoryPointsDone, um.Velocity, um.AvgCompletionHours, um.CapacityUtilization)
		n++
	}
	const dq = `INSERT INTO daily_metrics(cycle_id, day, wip, remaining_ideal_hours, ideal_trend_hours, completed_points, scope_points)
		VALUES($1,$2,$3,$4,$5,$6,$7)`
	for _, dm := range flow.Daily {
		batch.Queue(dq, dm.CycleID, dm.Day, dm.WIP, dm.RemainingIdealHours, dm.IdealTrendHours, dm.CompletedPoints, dm.ScopePoints)
		n++
	}
	const sq = `INSERT INTO scope_changes(cycle_id, at, delta_points) VALUES($1,$2,$3)`
	for _, sc := range flow.ScopeChanges {
		batch.Queue(sq, sc.CycleID, sc.At, sc.DeltaPoints)
		n++
	}
	if n > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < n; i++ {
			if _, err := br.Exec(); err != nil { br.Close(); return err }
		}
		if err := br.Close(); err != nil { return err }
	}
	return tx.Commit(ctx)
}

func (r *Repository) InsertForecast(ctx context.Context, fc domain.MonteCarloForecast) error {
	const q = `INSERT INTO monte_carlo_forecasts(run_id, simulated_at, remaining_points, trial_count,
			sample_cycles, low_confidence,
			p50_cycles, p80_cycles, p95_cycles,
			p50_date, p80_date, p95_date,
			expected_date, earliest_date, latest_date)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.db.Pool.Exec(ctx, q, fc.RunID, fc.SimulatedAt, fc.RemainingPoints, fc.TrialCount,
		fc.SampleCycles, fc.LowConfidence,
		fc.P50Cycles, fc.P80Cycles, fc.P95Cycles,
		fc.P50Date, fc.P80Date, fc.P95Date,
		fc.ExpectedDate, fc.EarliestDate, fc.LatestDate)
	return err
}

// ---- Loaders for the dashboard and the forecaster ----

const cycleMetricsColumns = `cycle_id, total_story_points, completed_story_points,
	throughput, velocity, avg_cycle_time_hours,
	cycle_time_p50_hours, cycle_time_p80_hours, cycle_time_p95_hours,
	lead_time_p50_hours, lead_time_p80_hours, lead_time_p95_hours,
	efficiency_ratio, flagged_issues, wip_limit_breach_days, starts_at, ends_at`

func (r *Repository) ListCycleMetrics(ctx context.Context) ([]domain.CycleMetrics, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+cycleMetricsColumns+` FROM cycle_metrics ORDER BY starts_at`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.CycleMetrics
	for rows.Next() {
		var m domain.CycleMetrics
		if err := rows.Scan(&m.CycleID, &m.TotalStoryPoints, &m.CompletedStoryPoints,
			&m.Throughput, &m.Velocity, &m.AvgCycleTimeHours,
			&m.CycleTimeP50Hours, &m.CycleTimeP80Hours, &m.CycleTimeP95Hours,
			&m.LeadTimeP50Hours, &m.LeadTimeP80Hours, &m.LeadTimeP95Hours,
			&m.EfficiencyRatio, &m.FlaggedIssues, &m.WIPLimitBreachDays, &m.StartsAt, &m.EndsAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) ListUserMetrics(ctx context.Context) ([]domain.UserMetrics, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT cycle_id, user_id, story_points_done, velocity, avg_completion_hours, capacity_utilization
		FROM user_metrics ORDER BY cycle_id, user_id`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.UserMetrics
	for rows.Next() {
		var m domain.UserMetrics
		if err := rows.Scan(&m.CycleID, &m.UserID, &m.StoryPointsDone, &m.Velocity, &m.AvgCompletionHours, &m.CapacityUtilization); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) ListDailyMetrics(ctx context.Context, cycleID string) ([]domain.DailyMetrics, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT cycle_id, day, wip, remaining_ideal_hours, ideal_trend_hours, completed_points, scope_points
		FROM daily_metrics WHERE cycle_id=$1 ORDER BY day`, cycleID)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.DailyMetrics
	for rows.Next() {
		var m domain.DailyMetrics
		if err := rows.Scan(&m.CycleID, &m.Day, &m.WIP, &m.RemainingIdealHours, &m.IdealTrendHours, &m.CompletedPoints, &m.ScopePoints); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) ListForecasts(ctx context.Context, limit int) ([]domain.MonteCarloForecast, error) {
	if limit <= 0 { limit = 50 }
	rows, err := r.db.Pool.Query(ctx, `SELECT run_id, simulated_at, remaining_points, trial_count,
			sample_cycles, low_confidence,
			p50_cycles, p80_cycles, p95_cycles,
			p50_date, p80_date, p95_date,
			expected_date, earliest_date, latest_date
		FROM monte_carlo_forecasts ORDER BY simulated_at DESC LIMIT $1`, limit)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.MonteCarloForecast
	for rows.Next() {
		var f domain.MonteCarloForecast
		if err := rows.Scan(&f.RunID, &f.SimulatedAt, &f.RemainingPoints, &f.TrialCount,
			&f.SampleCycles, &f.LowConfidence,
			&f.P50Cycles, &f.P80Cycles, &f.P95Cycles,
			&f.P50Date, &f.P80Date, &f.P95Date,
			&f.ExpectedDate, &f.EarliestDate, &f.LatestDate); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
