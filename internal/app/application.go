// Package app owns the process lifecycle: configuration, wiring,
// serving and graceful shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clearrail/clearrail/internal/api/routes"
	"github.com/clearrail/clearrail/internal/infrastructure/config"
	"github.com/clearrail/clearrail/internal/infrastructure/database"
	"github.com/clearrail/clearrail/internal/infrastructure/di"
	"github.com/clearrail/clearrail/internal/workers/reconciliation"
	"github.com/clearrail/clearrail/pkg/logger"
	"github.com/clearrail/clearrail/pkg/metrics"
)

// Application represents the settlement service process
type Application struct {
	cfg       *config.Config
	log       *logger.Logger
	server    *http.Server
	container *di.Container
	sweeper   *reconciliation.Sweeper
}

// NewApplication creates a new application instance
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads config and wires all components
func (app *Application) Initialize() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.cfg = cfg

	log := logger.New(cfg.LogLevel, cfg.Environment)
	app.log = log

	if cfg.Webhooks.AllowInsecure {
		log.Warn("Webhook signature verification may be skipped: insecure mode is enabled")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	container, err := di.NewContainer(cfg, db, log)
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	app.container = container

	if cfg.Reconciliation.Enabled {
		app.sweeper = reconciliation.NewSweeper(cfg.Reconciliation, container.EventRepo, container.Pipeline, log)
		if err := app.sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start reconciliation sweeper: %w", err)
		}
	}

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return nil
}

// initializeServer builds the HTTP server
func (app *Application) initializeServer() error {
	if app.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := routes.SetupRoutes(app.container)

	app.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(app.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(app.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return nil
}

// Start starts serving and background collection
func (app *Application) Start() error {
	go func() {
		app.log.Info("Starting server",
			"port", app.cfg.Server.Port,
			"environment", app.cfg.Environment,
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.Fatal("Failed to start server", "error", err)
		}
	}()

	go app.startMetricsCollection()

	return nil
}

// startMetricsCollection samples pool state periodically
func (app *Application) startMetricsCollection() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := app.container.DB.Stats()
		metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
		metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
		metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
	}
}

// Shutdown gracefully stops the application
func (app *Application) Shutdown() error {
	app.log.Info("Shutting down server...")

	if app.sweeper != nil {
		app.sweeper.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.log.Error("Server forced to shutdown", "error", err)
		return err
	}

	if err := app.container.Redis.Close(); err != nil {
		app.log.Warn("Error closing redis client", "error", err)
	}
	if err := app.container.DB.Close(); err != nil {
		app.log.Warn("Error closing database", "error", err)
	}

	app.log.Info("Server exited gracefully")
	return nil
}

// WaitForShutdown blocks until an interrupt signal arrives
func (app *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
