// Package app wires configuration into the services shared by the API server
// and the analyze command.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/reelsense/internal/api/handler"
	"github.com/timmy/reelsense/internal/cache"
	"github.com/timmy/reelsense/internal/config"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/media"
	"github.com/timmy/reelsense/internal/metrics"
	"github.com/timmy/reelsense/internal/repository"
	"github.com/timmy/reelsense/internal/service"
	"github.com/timmy/reelsense/internal/source"
	"github.com/timmy/reelsense/internal/source/export"
	"github.com/timmy/reelsense/internal/storage"
	"gorm.io/gorm"
)

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// App holds the wired services. Optional backends are nil when disabled.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Contents *repository.ContentRepository
	Runs     *repository.RunRepository
	Index    *repository.EntityIndex
	Redis    *redis.Client
	Cache    *cache.AnalysisCache
	Storage  storage.ObjectStorage
	Metrics  *metrics.Metrics
	Pipeline *service.PipelineService
	Search   *service.SearchService
}

// NewLogger builds the process logger from the log section and installs it as default.
func NewLogger(cfg *config.LogConfig, serviceName string) *logger.Logger {
	l := logger.New(&logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		File:        cfg.File,
		FileOnly:    cfg.FileOnly,
		MaxSize:     cfg.MaxSize,
		MaxBackups:  cfg.MaxBackups,
		MaxAge:      cfg.MaxAge,
		Compress:    cfg.Compress,
	})
	logger.SetDefaultLogger(l)
	return l
}

// New connects every enabled backend and builds the services.
// Parameters:
//   - ctx: context used for startup checks.
//   - cfg: validated application configuration.
//   - m: metrics sink; may be nil.
//
// Returns:
//   - *App: wired application; call Close when done.
//   - error: non-nil if a required or enabled backend cannot be initialized.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*App, error) {
	a := &App{Config: cfg, Metrics: m}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.Contents = repository.NewContentRepository(db)
	a.Runs = repository.NewRunRepository(db)

	if cfg.Redis.Enabled {
		a.Redis = cache.NewRedisClient(&cfg.Redis)
		a.Cache = cache.NewAnalysisCache(a.Redis, cfg.Pipeline.CacheTTL)
		if err := a.Cache.Ping(ctx); err != nil {
			// the database still answers "already analyzed"
			logger.CtxWarn(ctx, "Redis unavailable, analyzed cache degraded: addr=%s, error=%v", cfg.Redis.Addr, err)
		}
	}

	var (
		embedder   service.Embedder
		dimensions int
	)
	if cfg.Embedding.Enabled {
		embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
		})
		embedder = embeddingService
		dimensions = embeddingService.Dimensions()
		logger.With(logger.Fields{
			"model":      embeddingService.GetModel(),
			"dimensions": dimensions,
		}).Info(ctx, "Embedding enabled")
	}

	if cfg.Qdrant.Enabled {
		index, err := repository.NewEntityIndex(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: dimensions,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize entity index: %w", err)
		}
		a.Index = index
		if err := index.EnsureCollection(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure qdrant collection: %w", err)
		}
	}

	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.Storage = objectStorage
		if b, ok := objectStorage.(bucketEnsurer); ok {
			if err := b.EnsureBucket(ctx); err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
			}
		}
	}

	ff := media.New(&media.Config{
		FFmpegPath:  cfg.Media.FFmpegPath,
		FFprobePath: cfg.Media.FFprobePath,
		TempDir:     cfg.Media.TempDir,
	}, nil)
	if err := ff.CheckTools(); err != nil {
		// captions are still analyzed; video and audio report failures per item
		logger.CtxWarn(ctx, "Media tools unavailable: %v", err)
	}

	analyzer := newAnalyzer(cfg, ff, m)

	pipelineDeps := service.PipelineDeps{
		Analyzer: analyzer,
		Prober:   ff,
		Contents: a.Contents,
		Runs:     a.Runs,
		Embedder: embedder,
		Storage:  a.Storage,
		Metrics:  m,
	}
	// typed nils must not leak into the interfaces
	if a.Index != nil {
		pipelineDeps.Index = a.Index
	}
	if a.Cache != nil {
		pipelineDeps.Cache = a.Cache
	}
	a.Pipeline = service.NewPipelineService(pipelineDeps, &service.PipelineConfig{
		Workers:   cfg.Pipeline.Workers,
		BatchSize: cfg.Pipeline.BatchSize,
		Archive:   cfg.Pipeline.Archive,
	})

	var searcher service.EntitySearcher
	if a.Index != nil {
		searcher = a.Index
	}
	a.Search = service.NewSearchService(a.Contents, searcher, embedder, a.Storage, nil)

	return a, nil
}

func newAnalyzer(cfg *config.Config, ff *media.FFmpeg, m *metrics.Metrics) *service.MultiModalAnalyzer {
	vision := service.NewVisionService(&service.ModelConfig{
		Model:       cfg.Vision.Model,
		APIKey:      cfg.Vision.APIKey,
		BaseURL:     cfg.Vision.BaseURL,
		MaxTokens:   cfg.Vision.MaxTokens,
		Temperature: cfg.Vision.Temperature,
		Timeout:     cfg.Vision.Timeout,
	})
	chat := service.NewChatService(&service.ModelConfig{
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	whisper := service.NewWhisperService(&service.WhisperConfig{
		Model:   cfg.Transcription.Model,
		APIKey:  cfg.Transcription.APIKey,
		BaseURL: cfg.Transcription.BaseURL,
		Timeout: cfg.Transcription.Timeout,
	})

	logger.With(logger.Fields{
		"vision":        vision.GetModel(),
		"llm":           chat.GetModel(),
		"transcription": whisper.GetModel(),
	}).Info(context.Background(), "Model clients configured")

	sampler := media.NewFrameSampler(ff, &media.SamplerConfig{
		MaxFrames:     cfg.Media.MaxFrames,
		FrameInterval: cfg.Media.FrameInterval,
		MaxFrameEdge:  cfg.Media.MaxFrameEdge,
	})

	return service.NewMultiModalAnalyzer(
		service.NewTextProcessor(chat),
		service.NewVideoProcessor(sampler, service.NewVisualAnalyzer(vision), cfg.Media.MaxFrames),
		service.NewAudioProcessor(ff, whisper, cfg.Transcription.MaxFileMB),
		m,
	)
}

// ExportSource opens the named export under the configured export directory.
func (a *App) ExportSource(exportID string) source.Source {
	return export.NewAdapter(a.Config.Pipeline.ExportDir, exportID)
}

// HealthChecks returns probes for the backends in use.
func (a *App) HealthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.Cache != nil {
		checks["redis"] = a.Cache.Ping
	}
	return checks
}

// Close releases connections. It is safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
