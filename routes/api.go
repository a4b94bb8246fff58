package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/environments"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/handlers"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	dispatchHandler *handlers.DispatchHandler,
	settingsHandler *handlers.SettingsHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Dispatch routes with their own API key
	dispatches := v1.Group("/dispatches", middlewares.APIKeyAuth(cfg.Auth.DispatchesAPIKey))

	dispatches.GET("", dispatchHandler.ListDispatches)
	dispatches.GET("/stats", dispatchHandler.GetDispatchStats)
	dispatches.POST("/guests", dispatchHandler.StartGuestDispatch)
	dispatches.POST("/groups", dispatchHandler.StartGroupDispatch)
	dispatches.GET("/:id", dispatchHandler.GetDispatchStatus)
	dispatches.GET("/:id/recipients", dispatchHandler.GetDispatch)
	dispatches.POST("/:id/cancel", dispatchHandler.CancelDispatch)
	dispatches.POST("/:id/resume", dispatchHandler.ResumeDispatch)

	// Settings routes with their own API key
	settings := v1.Group("/settings", middlewares.APIKeyAuth(cfg.Auth.SettingsAPIKey))

	settings.GET("/:companyId", settingsHandler.GetSettings)
	settings.PUT("/:companyId", settingsHandler.SaveSettings)
}
