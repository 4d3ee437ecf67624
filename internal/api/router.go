package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/reelsense/internal/api/handler"
	"github.com/timmy/reelsense/internal/api/middleware"
	"github.com/timmy/reelsense/internal/config"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/metrics"
)

// RouterDeps groups what the HTTP surface needs.
type RouterDeps struct {
	Search   handler.ContentQuerier
	Pipeline handler.PostAnalyzer
	Runs     handler.RunReader
	Exports  handler.SourceResolver
	Checks   map[string]handler.HealthCheck
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // nil uses the default gatherer
	Logger   *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, server config.ServerConfig) *gin.Engine {
	switch server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.CORS(server.CORS))

	healthHandler := handler.NewHealthHandler(deps.Checks)
	contentHandler := handler.NewContentHandler(deps.Search)
	analyzeHandler := handler.NewAnalyzeHandler(deps.Pipeline, deps.Runs, deps.Exports)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		// Analysis
		v1.POST("/analyze", analyzeHandler.Analyze)
		v1.POST("/analyze/export", analyzeHandler.RunExport)
		v1.GET("/analyze/status", analyzeHandler.RunStatus)

		// Runs
		v1.GET("/runs", analyzeHandler.ListRuns)
		v1.GET("/runs/:id", analyzeHandler.GetRun)

		// Content
		v1.GET("/content", contentHandler.ListContent)
		v1.GET("/content/recent", contentHandler.RecentContent)
		v1.GET("/content/:id", contentHandler.GetContent)
		v1.GET("/content/:id/media", contentHandler.GetMedia)

		// Entities
		v1.POST("/entities/search", contentHandler.SearchEntities)
		v1.GET("/entities/search", contentHandler.SearchEntitiesGet)

		// Stats
		v1.GET("/stats", contentHandler.GetStats)
	}

	return r
}
