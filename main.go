package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/environments"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/handlers"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/repository"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/service"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/database"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/gateway"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/logger"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/redis"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/validator"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/routes"

	_ "github.com/centralplastcontato-cell/buffet-dispatch-service/docs" // swagger docs
)

// @title Buffet Dispatch Service API
// @version 1.0
// @description Paced bulk WhatsApp dispatch service for party buffet companies
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email contato@centralplast.com.br

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	logger.Init()

	// Load config
	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Gateway.APIKey == "" {
		logger.Fatalf("WA_GATEWAY_API_KEY is required but not set")
	}
	if cfg.Auth.DispatchesAPIKey == "" {
		logger.Fatalf("DISPATCHES_API_KEY is required but not set")
	}
	if cfg.Auth.SettingsAPIKey == "" {
		logger.Fatalf("SETTINGS_API_KEY is required but not set")
	}

	logger.Infof("Starting Buffet Dispatch Service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis
	redisClient, err := redis.NewRedisClient(cfg.Redis, cfg.Dispatch.SnapshotTTL)
	if err != nil {
		logger.Warnf("Redis not available, progress caching disabled: %v", err)
		redisClient = nil
	}

	// Initialize gateway client
	gatewayClient := gateway.NewClient(cfg.Gateway)
	logger.Infof("Gateway configured: %s", gatewayClient.GetBaseURL())

	// Initialize repositories
	runRepo := repository.NewRunRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// Create context for graceful shutdown; running dispatches derive
	// their per-run contexts from it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize service
	var progressCache service.ProgressCache
	if redisClient != nil {
		progressCache = redisClient
	}

	dispatchService := service.NewDispatchService(
		ctx,
		runRepo,
		settingsRepo,
		gatewayClient,
		progressCache,
		cfg.Dispatch,
	)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient, gatewayClient)
	dispatchHandler := handlers.NewDispatchHandler(dispatchService)
	settingsHandler := handlers.NewSettingsHandler(dispatchService)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-buffet-auth-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, dispatchHandler, settingsHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context to stop running dispatches cooperatively
	cancel()

	// Wait for in-flight dispatch loops to record their partial tallies
	logger.Infof("Waiting for running dispatches to stop...")
	waitDone := make(chan struct{})
	go func() {
		dispatchService.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		logger.Infof("All dispatches stopped")
	case <-time.After(10 * time.Second):
		logger.Warnf("Dispatch stop timeout, forcing shutdown")
	}

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
