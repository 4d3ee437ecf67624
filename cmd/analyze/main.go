package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/reelsense/internal/app"
	"github.com/timmy/reelsense/internal/config"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/metrics"
	"github.com/timmy/reelsense/internal/service"
	"github.com/timmy/reelsense/internal/source/export"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "reelsense-analyze",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	exportID := flag.String("export", "", "Export directory to analyze (under pipeline.export_dir)")
	limit := flag.Int("limit", 0, "Maximum number of posts to analyze, 0 for all")
	force := flag.Bool("force", false, "Re-analyze posts that were already analyzed")
	list := flag.Bool("list", false, "List available exports and exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	appLogger = app.NewLogger(&cfg.Log, "reelsense-analyze")
	defer logger.Sync()

	if *list {
		exports, err := export.ListExports(cfg.Pipeline.ExportDir)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to list exports")
		}
		for _, id := range exports {
			fmt.Println(id)
		}
		return
	}

	if *exportID == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -export <name> [-limit n] [-force] [-config path]")
		os.Exit(2)
	}

	appLogger.WithFields(logger.Fields{
		"export": *exportID,
		"limit":  *limit,
		"force":  *force,
	}).Info("Starting analysis")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, metrics.New(nil))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	stats, err := a.Pipeline.AnalyzeSource(ctx, a.ExportSource(*exportID), &service.PipelineOptions{
		Force: *force,
		Limit: *limit,
	})
	if err != nil {
		appLogger.WithError(err).Error("Analysis run failed")
		a.Close()
		os.Exit(1)
	}

	appLogger.WithFields(logger.Fields{
		"run":       stats.RunID,
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"skipped":   stats.SkippedItems,
		"failed":    stats.FailedItems,
		"duration":  stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Analysis completed")
}
