package controller

import (
	"context"
	"net/http"
	"time"

	"otp-gateway/pkg/clock"
	"otp-gateway/pkg/logger"

	"github.com/labstack/echo/v4"
)

const readinessTimeout = 2 * time.Second

// Pinger is the store connectivity check used by readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	store     Pinger
	version   string
	startedAt time.Time
	clock     clock.Clocker
	logger    *logger.Logger
}

func NewHealthController(store Pinger, version string, clk clock.Clocker, logger *logger.Logger) *HealthController {
	if clk == nil {
		clk = clock.New()
	}
	return &HealthController{
		store:     store,
		version:   version,
		startedAt: clk.Now(),
		clock:     clk,
		logger:    logger,
	}
}

// HealthResponse represents the liveness response
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime" example:"42.5"`
	Version   string    `json:"version" example:"1.0.0"`
}

// ReadinessResponse represents the readiness response
type ReadinessResponse struct {
	Status    string            `json:"status" example:"ready"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Error     string            `json:"error,omitempty"`
}

// HealthCheck godoc
// @Summary Liveness probe
// @Description Returns ok while the process is serving requests
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthController) HealthCheck(c echo.Context) error {
	now := h.clock.Now()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.startedAt).Seconds(),
		Version:   h.version,
	})
}

// Ready godoc
// @Summary Readiness probe
// @Description Reports whether the key-value store is reachable
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func (h *HealthController) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Errorw("Readiness check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, ReadinessResponse{
			Status:    "not ready",
			Timestamp: h.clock.Now().UTC(),
			Checks:    map[string]string{"store": "failed"},
			Error:     "Service dependencies not available",
		})
	}

	return c.JSON(http.StatusOK, ReadinessResponse{
		Status:    "ready",
		Timestamp: h.clock.Now().UTC(),
		Checks:    map[string]string{"store": "ok"},
	})
}
