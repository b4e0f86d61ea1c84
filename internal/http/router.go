/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/config"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc Service) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context){
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    h := NewHandlers(cfg, log, svc)

    r.GET("/healthz", h.Healthz)
    r.GET("/admin/last-run", h.LastRun)
    r.POST("/admin/run", h.RunNow)
    r.PUT("/admin/capacity", h.UpdateCapacities)

    api := r.Group("/api")
    api.GET("/cycles", h.Cycles)
    api.GET("/cycles/:id/daily", h.CycleDaily)
    api.GET("/users", h.Users)
    api.GET("/forecasts", h.Forecasts)
    api.POST("/forecast", h.ForecastNow)
    api.GET("/velocity-trend", h.VelocityTrend)
    api.GET("/accuracy", h.AccuracyReport)

    return r
}
