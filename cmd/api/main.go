package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/reelsense/internal/api"
	"github.com/timmy/reelsense/internal/app"
	"github.com/timmy/reelsense/internal/config"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/metrics"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := app.NewLogger(&cfg.Log, "reelsense-api")
	defer logger.Sync()

	ctx := context.Background()
	m := metrics.New(nil)

	a, err := app.New(ctx, cfg, m)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	appLogger.WithFields(logger.Fields{
		"redis":     a.Cache != nil,
		"qdrant":    a.Index != nil,
		"storage":   a.Storage != nil,
		"archive":   cfg.Pipeline.Archive,
		"workers":   cfg.Pipeline.Workers,
		"exportDir": cfg.Pipeline.ExportDir,
	}).Info("Application initialized")

	router := api.SetupRouter(api.RouterDeps{
		Search:   a.Search,
		Pipeline: a.Pipeline,
		Runs:     a.Runs,
		Exports:  a.ExportSource,
		Checks:   a.HealthChecks(),
		Metrics:  m,
		Logger:   appLogger,
	}, cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Export runs are synchronous requests, so allow them time to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
