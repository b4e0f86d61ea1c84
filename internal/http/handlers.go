/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"

    "github.com/aytch4k/linear-app-productivity-metrics/internal/config"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/forecast"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/metrics"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/repo"
    "github.com/rs/zerolog"
)

type Service interface {
    RunFull(ctx context.Context) error
    RunForecast(ctx context.Context) (domain.MonteCarloForecast, error)
    GetLastRun(ctx context.Context) (*repo.LastRun, error)
    CycleMetrics(ctx context.Context) ([]domain.CycleMetrics, error)
    CycleDaily(ctx context.Context, cycleID string) ([]domain.DailyMetrics, error)
    UserMetrics(ctx context.Context) ([]domain.UserMetrics, error)
    Users(ctx context.Context) ([]domain.User, error)
    SetCycleCapacities(ctx context.Context, caps []domain.CycleCapacity) error
    Forecasts(ctx context.Context, limit int) ([]domain.MonteCarloForecast, error)
    VelocityTrend(ctx context.Context) ([]metrics.VelocityTrendPoint, error)
    AccuracyReport(ctx context.Context) (forecast.Accuracy, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc Service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc Service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunNow(c *gin.Context) {
    // Run detached from the HTTP request to avoid context cancellation
    go func(){
        if err := h.svc.RunFull(context.Background()); err != nil {
            h.log.Error().Err(err).Msg("manual run failed")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) Cycles(c *gin.Context) {
    cms, err := h.svc.CycleMetrics(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"cycles": cms})
}

func (h *Handlers) CycleDaily(c *gin.Context) {
    daily, err := h.svc.CycleDaily(c.Request.Context(), c.Param("id"))
    if err != nil {
        if errors.Is(err, domain.ErrNoCycles) {
            c.JSON(http.StatusNotFound, gin.H{"error": "unknown cycle"})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"daily": daily})
}

func (h *Handlers) Users(c *gin.Context) {
    ums, err := h.svc.UserMetrics(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    dir, err := h.svc.Users(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"users": ums, "directory": dir})
}

// UpdateCapacities overrides per-user availability for a cycle.
func (h *Handlers) UpdateCapacities(c *gin.Context) {
    var body struct {
        Capacities []domain.CycleCapacity `json:"capacities"`
    }
    if err := c.ShouldBindJSON(&body); err != nil || len(body.Capacities) == 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "capacities required"})
        return
    }
    for _, row := range body.Capacities {
        if row.CycleID == "" || row.UserID == "" || row.AvailableHours < 0 {
            c.JSON(http.StatusBadRequest, gin.H{"error": "cycle_id, user_id and non-negative available_hours required"})
            return
        }
    }
    if err := h.svc.SetCycleCapacities(c.Request.Context(), body.Capacities); err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"updated": len(body.Capacities)})
}

func (h *Handlers) Forecasts(c *gin.Context) {
    limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
    fcs, err := h.svc.Forecasts(c.Request.Context(), limit)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"forecasts": fcs})
}

// ForecastNow simulates synchronously and returns the stored forecast.
func (h *Handlers) ForecastNow(c *gin.Context) {
    fc, err := h.svc.RunForecast(c.Request.Context())
    if err != nil {
        if errors.Is(err, domain.ErrInsufficientSample) {
            c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, fc)
}

func (h *Handlers) VelocityTrend(c *gin.Context) {
    trend, err := h.svc.VelocityTrend(c.Request.Context())
    if err != nil {
        if errors.Is(err, domain.ErrInsufficientSample) {
            c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"trend": trend})
}

func (h *Handlers) AccuracyReport(c *gin.Context) {
    acc, err := h.svc.AccuracyReport(c.Request.Context())
    if err != nil {
        if errors.Is(err, domain.ErrInsufficientSample) {
            c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, acc)
}
