/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/aytch4k/linear-app-productivity-metrics/internal/adapters/linear"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/config"
    apphttp "github.com/aytch4k/linear-app-productivity-metrics/internal/http"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/jobs"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/logger"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/repo"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    if err := db.EnsureSchema(ctx); err != nil {
        log.Fatal().Err(err).Msg("schema init failed")
    }
    repository := repo.NewRepository(db, log)

    // Adapters
    lc := linear.NewClient(cfg, log)

    // Services
    svc := services.New(cfg, log, repository, lc)

    // HTTP server (Gin)
    router := apphttp.NewRouter(cfg, log, svc)

    // Cron
    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
