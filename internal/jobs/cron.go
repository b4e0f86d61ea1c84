package jobs

import (
    "context"
    "time"

    "github.com/aytch4k/linear-app-productivity-metrics/internal/config"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/repo"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface { RunFull(ctx context.Context) error }

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    _, _ = c.AddFunc(cfg.SyncCron, cr.sync)
    return cr
}

func (cr *Cron) Start(){ cr.c.Start() }
func (cr *Cron) Stop(){ cr.c.Stop() }

func (cr *Cron) sync(){
    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute); defer cancel()
    // one sync at a time across replicas
    const lockKey int64 = 721821
    ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: already running elsewhere"); return }
    defer func(){ _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()
    cr.log.Info().Msg("cron: sync and recompute")
    if err := cr.svc.RunFull(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: run failed") }
}
