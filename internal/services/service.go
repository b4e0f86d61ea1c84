/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/aytch4k/linear-app-productivity-metrics/internal/adapters/linear"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/config"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/forecast"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/metrics"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/repo"
    "github.com/rs/zerolog"
)

type LinearClient interface {
    Viewer(ctx context.Context) (domain.User, error)
    Users(ctx context.Context) ([]domain.User, error)
    Teams(ctx context.Context) ([]linear.Team, error)
    TeamCycles(ctx context.Context, teamID string) ([]domain.Cycle, error)
    TeamIssues(ctx context.Context, teamID string) ([]linear.IssueWithHistory, error)
}

type Service struct {
    cfg    config.Config
    log    zerolog.Logger
    repo   *repo.Repository
    linear LinearClient
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, lc LinearClient) *Service {
    return &Service{cfg: cfg, log: log, repo: r, linear: lc}
}

// RunFull executes one sync-then-recompute pass under job-run
// bookkeeping. Forecasting is best-effort: a thin history logs a
// warning instead of failing the run.
func (s *Service) RunFull(ctx context.Context) error {
    runID, err := s.repo.StartJobRun(ctx)
    if err != nil { return err }

    issuesSynced, syncErr := s.RunSync(ctx)
    cyclesComputed, flagged := 0, 0
    var aggErr error
    if syncErr == nil {
        cyclesComputed, flagged, aggErr = s.RunAggregation(ctx)
    }
    if syncErr == nil && aggErr == nil {
        if _, err := s.RunForecast(ctx); err != nil {
            if errors.Is(err, domain.ErrInsufficientSample) {
                s.log.Warn().Err(err).Msg("forecast skipped")
            } else {
                aggErr = err
            }
        }
    }

    runErr := syncErr
    if runErr == nil { runErr = aggErr }
    errStr := ""
    if runErr != nil { errStr = runErr.Error() }
    if err := s.repo.FinishJobRun(ctx, runID, issuesSynced, cyclesComputed, flagged, runErr == nil, errStr); err != nil {
        s.log.Error().Err(err).Msg("finish job run failed")
    }
    return runErr
}

// RunSync pulls users, teams, cycles and issues (with their workflow
// history) from Linear and upserts them into the source tables. Blocked
// periods and effort hours are derived from each issue's history before
// the write, so the aggregators only ever read the store.
func (s *Service) RunSync(ctx context.Context) (int, error) {
    started := time.Now()
    viewer, err := s.linear.Viewer(ctx)
    if err != nil { return 0, fmt.Errorf("linear connectivity: %w", err) }
    s.log.Info().Str("viewer", viewer.Name).Msg("sync started")

    users, err := s.linear.Users(ctx)
    if err != nil { return 0, err }
    if err := s.repo.UpsertUsers(ctx, users); err != nil { return 0, err }

    teams, err := s.linear.Teams(ctx)
    if err != nil { return 0, err }
    teams = s.filterTeams(teams)

    synced := 0
    for _, team := range teams {
        cycles, err := s.linear.TeamCycles(ctx, team.ID)
        if err != nil { return synced, err }
        if err := s.repo.UpsertCycles(ctx, cycles); err != nil { return synced, err }
        if err := s.seedCapacities(ctx, team, cycles); err != nil { return synced, err }

        issues, err := s.linear.TeamIssues(ctx, team.ID)
        if err != nil { return synced, err }
        for _, item := range issues {
            n, err := s.syncIssue(ctx, item)
            if err != nil { return synced, err }
            synced += n
        }
        s.log.Info().Str("team", team.Key).Int("cycles", len(cycles)).Int("issues", len(issues)).Msg("team synced")
    }
    s.log.Info().Int("issues", synced).Dur("took", time.Since(started)).Msg("sync finished")
    return synced, nil
}

func (s *Service) filterTeams(teams []linear.Team) []linear.Team {
    if len(s.cfg.LinearTeamIDs) == 0 { return teams }
    want := map[string]bool{}
    for _, id := range s.cfg.LinearTeamIDs { want[id] = true }
    out := teams[:0]
    for _, t := range teams {
        if want[t.ID] || want[t.Key] { out = append(out, t) }
    }
    return out
}

// seedCapacities inserts a default availability row per cycle member.
// Existing rows are left alone so manually adjusted capacity survives
// every sync.
func (s *Service) seedCapacities(ctx context.Context, team linear.Team, cycles []domain.Cycle) error {
    var caps []domain.CycleCapacity
    for _, c := range cycles {
        for _, userID := range team.MemberIDs {
            caps = append(caps, domain.CycleCapacity{
                CycleID:        c.ID,
                UserID:         userID,
                AvailableHours: s.cfg.DefaultCapacityHours,
            })
        }
    }
    return s.repo.SeedCycleCapacities(ctx, caps)
}

// syncIssue writes one issue, its state changes and its derived blocked
// periods. Returns 1 when the issue was stored.
func (s *Service) syncIssue(ctx context.Context, item linear.IssueWithHistory) (int, error) {
    iss := item.Issue
    now := time.Now().UTC()

    blocked := blockedFromHistory(iss.ID, item.History, now)
    s.deriveHours(&iss, item.History, blocked, now)

    if err := s.repo.UpsertIssue(ctx, iss); err != nil { return 0, err }
    if err := s.repo.BulkInsertStateChanges(ctx, item.History); err != nil { return 0, err }
    for _, bp := range blocked {
        if err := s.repo.UpsertBlockedPeriod(ctx, bp); err != nil { return 0, err }
    }
    return 1, nil
}

// blockedFromHistory reconstructs blocked spans from transitions into
// and out of blocked-class workflow states. A span still open at sync
// time keeps a nil end; the closing transition on a later sync fills it.
func blockedFromHistory(issueID string, history []domain.StateChange, now time.Time) []domain.BlockedPeriod {
    var out []domain.BlockedPeriod
    var open *time.Time
    for _, sc := range history {
        isBlocked := metrics.ClassifyState(sc.ToState) == metrics.ClassBlocked
        switch {
        case isBlocked && open == nil:
            at := sc.At
            open = &at
        case !isBlocked && open != nil:
            at := sc.At
            out = append(out, domain.BlockedPeriod{IssueID: issueID, StartedAt: *open, EndedAt: &at})
            open = nil
        }
    }
    if open != nil {
        out = append(out, domain.BlockedPeriod{IssueID: issueID, StartedAt: *open})
    }
    return out
}

// deriveHours fills the effort columns Linear does not carry natively:
// ideal hours scale the point estimate by a configured hours-per-point,
// actual hours are the active (non-blocked) working time observed in
// the issue's history so far. Issues whose history cannot be replayed
// keep nil hours and are flagged later by the aggregation.
func (s *Service) deriveHours(iss *domain.Issue, history []domain.StateChange, blocked []domain.BlockedPeriod, now time.Time) {
    if iss.Estimate != nil && s.cfg.IdealHoursPerPoint > 0 {
        ideal := *iss.Estimate * s.cfg.IdealHoursPerPoint
        iss.IdealHours = &ideal
    }
    tl, err := metrics.BuildTimeline(*iss, history, blocked, now)
    if err != nil {
        s.log.Warn().Err(err).Str("issue", iss.ID).Msg("history not replayable, hours skipped")
        return
    }
    if tl.StartedAt != nil {
        actual := tl.ActiveCycleTime().Hours()
        iss.ActualHours = &actual
    }
}

// RunAggregation recomputes every derived table from the source tables.
// Returns the number of cycles recomputed and the number of issues
// flagged for inconsistent history.
func (s *Service) RunAggregation(ctx context.Context) (int, int, error) {
    started := time.Now()
    cycles, err := s.repo.ListCycles(ctx)
    if err != nil { return 0, 0, err }
    if len(cycles) == 0 { return 0, 0, domain.ErrNoCycles }

    issues, err := s.repo.ListIssues(ctx)
    if err != nil { return 0, 0, err }
    changes, err := s.repo.ListStateChanges(ctx)
    if err != nil { return 0, 0, err }
    blocked, err := s.repo.ListBlockedPeriods(ctx)
    if err != nil { return 0, 0, err }
    capacities, err := s.repo.ListCycleCapacities(ctx)
    if err != nil { return 0, 0, err }

    now := time.Now().UTC()
    timelines := map[string]metrics.Timeline{}
    flaggedByCycle := map[string]int{}
    totalFlagged := 0
    for _, iss := range issues {
        tl, err := metrics.BuildTimeline(iss, changes[iss.ID], blocked[iss.ID], now)
        if err != nil {
            if errors.Is(err, domain.ErrInconsistentHistory) {
                s.log.Warn().Err(err).Str("issue", iss.ID).Msg("issue flagged")
                if iss.CycleID != nil { flaggedByCycle[*iss.CycleID]++ }
                totalFlagged++
                continue
            }
            return 0, totalFlagged, err
        }
        timelines[iss.ID] = tl
    }

    mcfg := metrics.Config{WIPLimit: s.cfg.WIPLimit}
    computed := 0
    for _, cycle := range cycles {
        flow := metrics.BuildCycleFlow(cycle, issues, timelines, flaggedByCycle[cycle.ID], mcfg, now)
        userRows, missing := metrics.BuildUserMetrics(cycle, issues, capacities)
        for _, userID := range missing {
            s.log.Warn().Err(domain.ErrMissingCapacity).Str("cycle", cycle.ID).Str("user", userID).Msg("utilization omitted")
        }
        if err := s.repo.ReplaceCycleDerived(ctx, flow, userRows); err != nil {
            return computed, totalFlagged, err
        }
        computed++
    }
    s.log.Info().Int("cycles", computed).Int("flagged", totalFlagged).Dur("took", time.Since(started)).Msg("aggregation finished")
    return computed, totalFlagged, nil
}

// RunForecast simulates the remaining backlog against the completed
// cycles' velocity history and stores the result.
func (s *Service) RunForecast(ctx context.Context) (domain.MonteCarloForecast, error) {
    history, err := s.velocityHistory(ctx)
    if err != nil { return domain.MonteCarloForecast{}, err }
    remaining, err := s.repo.RemainingPoints(ctx)
    if err != nil { return domain.MonteCarloForecast{}, err }

    fc, err := forecast.Simulate(ctx, history, remaining, time.Now().UTC(), s.forecastConfig())
    if err != nil { return domain.MonteCarloForecast{}, err }
    if err := s.repo.InsertForecast(ctx, fc); err != nil { return domain.MonteCarloForecast{}, err }
    s.log.Info().
        Str("run_id", fc.RunID).
        Float64("remaining_points", remaining).
        Float64("p50_cycles", fc.P50Cycles).
        Float64("p95_cycles", fc.P95Cycles).
        Bool("low_confidence", fc.LowConfidence).
        Msg("forecast stored")
    return fc, nil
}

// velocityHistory returns the per-cycle velocities of cycles that have
// already ended. Open cycles would bias the sample downward.
func (s *Service) velocityHistory(ctx context.Context) ([]float64, error) {
    cms, err := s.repo.ListCycleMetrics(ctx)
    if err != nil { return nil, err }
    now := time.Now().UTC()
    var out []float64
    for _, cm := range cms {
        if cm.EndsAt.Before(now) {
            out = append(out, cm.Velocity)
        }
    }
    return out, nil
}

func (s *Service) forecastConfig() forecast.Config {
    seed := s.cfg.ForecastSeed
    if seed == 0 { seed = time.Now().UnixNano() }
    return forecast.Config{
        Trials:          s.cfg.SimulationTrials,
        BatchSize:       s.cfg.SimulationBatchSize,
        MinSample:       s.cfg.MinForecastSample,
        Seed:            seed,
        CycleLengthDays: s.cfg.CycleLengthDays,
        Parallelism:     s.cfg.ForecastWorkers,
    }
}

// ---- Read side for the HTTP layer ----

func (s *Service) GetLastRun(ctx context.Context) (*repo.LastRun, error) {
    return s.repo.GetLastRun(ctx)
}

func (s *Service) CycleMetrics(ctx context.Context) ([]domain.CycleMetrics, error) {
    return s.repo.ListCycleMetrics(ctx)
}

// CycleDaily returns the daily series for one cycle. An id no sync has
// ever seen yields ErrNoCycles; a known cycle with nothing computed yet
// yields an empty series.
func (s *Service) CycleDaily(ctx context.Context, cycleID string) ([]domain.DailyMetrics, error) {
    rows, err := s.repo.ListDailyMetrics(ctx, cycleID)
    if err != nil { return nil, err }
    if len(rows) == 0 {
        ok, err := s.repo.CycleExists(ctx, cycleID)
        if err != nil { return nil, err }
        if !ok { return nil, domain.ErrNoCycles }
    }
    return rows, nil
}

func (s *Service) UserMetrics(ctx context.Context) ([]domain.UserMetrics, error) {
    return s.repo.ListUserMetrics(ctx)
}

func (s *Service) Users(ctx context.Context) ([]domain.User, error) {
    return s.repo.ListUsers(ctx)
}

// SetCycleCapacities overwrites availability rows, the manual override
// for the defaults seeded at sync time.
func (s *Service) SetCycleCapacities(ctx context.Context, caps []domain.CycleCapacity) error {
    return s.repo.UpsertCycleCapacities(ctx, caps)
}

func (s *Service) Forecasts(ctx context.Context, limit int) ([]domain.MonteCarloForecast, error) {
    return s.repo.ListForecasts(ctx, limit)
}

func (s *Service) VelocityTrend(ctx context.Context) ([]metrics.VelocityTrendPoint, error) {
    cms, err := s.repo.ListCycleMetrics(ctx)
    if err != nil { return nil, err }
    trend := metrics.VelocityTrend(cms)
    if trend == nil { return nil, domain.ErrInsufficientSample }
    return trend, nil
}

func (s *Service) AccuracyReport(ctx context.Context) (forecast.Accuracy, error) {
    fcs, err := s.repo.ListForecasts(ctx, 200)
    if err != nil { return forecast.Accuracy{}, err }
    cms, err := s.repo.ListCycleMetrics(ctx)
    if err != nil { return forecast.Accuracy{}, err }
    return forecast.AnalyzeAccuracy(fcs, cms)
}
