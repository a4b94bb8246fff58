package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/redis"
)

// gatewayChecker is the reachability probe the health endpoint runs against
// the WhatsApp gateway.
type gatewayChecker interface {
	Reachable(ctx context.Context) error
}

// HealthHandler handles health checks.
type HealthHandler struct {
	db           *sqlx.DB
	redis        *redis.Client
	gateway      gatewayChecker
	checkTimeout time.Duration
}

func NewHealthHandler(db *sqlx.DB, redisClient *redis.Client, gatewayClient gatewayChecker) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redis:        redisClient,
		gateway:      gatewayClient,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and component statuses (DB, Redis, gateway).
// @Summary Health check
// @Description Returns overall status with DB, Redis and gateway connectivity results
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
		overallStatus = "down"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		overallStatus = "down"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		} else {
			redisStatus = "up"
		}
	}

	// Without the gateway no dispatch can start, but already-stored runs
	// stay readable, so this degrades rather than takes the service down.
	gatewayStatus := "unknown"
	if h.gateway != nil {
		if err := h.gateway.Reachable(ctx); err != nil {
			gatewayStatus = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		} else {
			gatewayStatus = "up"
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"redis": map[string]any{
				"status": redisStatus,
			},
			"gateway": map[string]any{
				"status": gatewayStatus,
			},
		},
	})
}
