package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/service"
	"github.com/timmy/reelsense/internal/source"
)

const maxPostsPerRequest = 100

// PostAnalyzer runs the analysis pipeline.
type PostAnalyzer interface {
	AnalyzeSource(ctx context.Context, src source.Source, opts *service.PipelineOptions) (*service.PipelineStats, error)
	AnalyzePost(ctx context.Context, post domain.SavedPost, force bool) (*domain.ContentAnalysis, error)
}

// RunReader reads recorded pipeline runs.
type RunReader interface {
	GetByID(ctx context.Context, id string) (*domain.AnalysisRun, error)
	ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRun, error)
}

// SourceResolver opens the export source with the given name.
type SourceResolver func(exportID string) source.Source

// AnalyzeHandler handles analysis and run endpoints.
type AnalyzeHandler struct {
	pipeline PostAnalyzer
	runs     RunReader
	resolve  SourceResolver

	// export run state
	mu            sync.RWMutex
	isRunning     bool
	currentStats  *service.PipelineStats
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAnalyzeHandler creates a new analyze handler.
// Parameters:
//   - pipeline: pipeline service.
//   - runs: run repository.
//   - resolve: opens export sources by name; nil disables export runs.
//
// Returns:
//   - *AnalyzeHandler: initialized handler.
func NewAnalyzeHandler(pipeline PostAnalyzer, runs RunReader, resolve SourceResolver) *AnalyzeHandler {
	return &AnalyzeHandler{
		pipeline: pipeline,
		runs:     runs,
		resolve:  resolve,
	}
}

// AnalyzeRequest carries saved posts to analyze.
type AnalyzeRequest struct {
	Posts []domain.SavedPost `json:"posts" binding:"required,min=1"`
	Force bool               `json:"force"`
}

// AnalyzeResponse is returned for a single post.
type AnalyzeResponse struct {
	ContentID string                  `json:"content_id"`
	Skipped   bool                    `json:"skipped,omitempty"`
	Analysis  *domain.ContentAnalysis `json:"analysis,omitempty"`
}

// ExportRunRequest starts a run over an export directory.
type ExportRunRequest struct {
	Export string `json:"export" binding:"required"`
	Limit  int    `json:"limit" binding:"min=0,max=10000"`
	Force  bool   `json:"force"`
}

// RunResponse reports a finished run.
type RunResponse struct {
	Message string                 `json:"message"`
	Stats   *service.PipelineStats `json:"stats,omitempty"`
}

// RunStatusResponse represents the export run status.
type RunStatusResponse struct {
	IsRunning     bool                   `json:"is_running"`
	LastRunTime   string                 `json:"last_run_time,omitempty"`
	LastRunStatus string                 `json:"last_run_status,omitempty"`
	CurrentStats  *service.PipelineStats `json:"current_stats,omitempty"`
}

// Analyze handles POST /api/v1/analyze.
// A single post is analyzed synchronously and its analysis returned; several
// posts run through the worker pool and the run statistics are returned.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	ctx := c.Request.Context()

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}
	if len(req.Posts) > maxPostsPerRequest {
		abortWithError(c, http.StatusBadRequest, "Too many posts, maximum is "+strconv.Itoa(maxPostsPerRequest), nil)
		return
	}
	for _, p := range req.Posts {
		if p.ContentID == "" {
			abortWithError(c, http.StatusBadRequest, "Every post needs a content_id", nil)
			return
		}
	}

	if len(req.Posts) == 1 {
		post := req.Posts[0]
		analysis, err := h.pipeline.AnalyzePost(ctx, post, req.Force)
		switch {
		case errors.Is(err, service.ErrAlreadyAnalyzed):
			c.JSON(http.StatusOK, AnalyzeResponse{ContentID: post.ContentID, Skipped: true})
		case err == nil, errors.Is(err, service.ErrAnalysisFailed):
			c.JSON(http.StatusOK, AnalyzeResponse{ContentID: post.ContentID, Analysis: analysis})
		default:
			abortWithError(c, statusFor(err), "Analysis failed", err)
		}
		return
	}

	stats, err := h.pipeline.AnalyzeSource(ctx, source.NewStatic("api", req.Posts), &service.PipelineOptions{Force: req.Force})
	if err != nil {
		abortWithError(c, statusFor(err), "Analysis run failed", err)
		return
	}
	c.JSON(http.StatusOK, RunResponse{Message: "Analysis completed", Stats: stats})
}

// RunExport handles POST /api/v1/analyze/export. Only one export run may be
// active at a time.
func (h *AnalyzeHandler) RunExport(c *gin.Context) {
	ctx := c.Request.Context()

	var req ExportRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid export run request: client_ip=%s, error=%v", c.ClientIP(), err)
		abortWithError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}
	if h.resolve == nil {
		abortWithError(c, http.StatusServiceUnavailable, "Export runs are not configured", nil)
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Export run rejected: already running, export=%s", req.Export)
		abortWithError(c, http.StatusConflict, "An export run is already running", nil)
		return
	}
	h.isRunning = true
	h.currentStats = nil
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting export run: export=%s, limit=%d, force=%v", req.Export, req.Limit, req.Force)

	// the run outlives a client disconnect
	runCtx := context.WithoutCancel(ctx)
	start := time.Now()
	stats, err := h.pipeline.AnalyzeSource(runCtx, h.resolve(req.Export), &service.PipelineOptions{
		Force: req.Force,
		Limit: req.Limit,
	})
	duration := time.Since(start)

	h.mu.Lock()
	h.isRunning = false
	h.currentStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{
			logger.FieldDurationMs: duration.Milliseconds(),
		}).Error(ctx, "Export run failed: export=%s, error=%v", req.Export, err)
		abortWithError(c, statusFor(err), "Export run failed", err)
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
		logger.FieldCount:      stats.ProcessedItems,
	}).Info(ctx, "Export run completed: export=%s, total=%d, skipped=%d, failed=%d",
		req.Export, stats.TotalItems, stats.SkippedItems, stats.FailedItems)

	c.JSON(http.StatusOK, RunResponse{Message: "Export run completed", Stats: stats})
}

// RunStatus handles GET /api/v1/analyze/status.
func (h *AnalyzeHandler) RunStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := RunStatusResponse{
		IsRunning:     h.isRunning,
		LastRunStatus: h.lastRunStatus,
		CurrentStats:  h.currentStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// ListRuns handles GET /api/v1/runs.
func (h *AnalyzeHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, statusFor(err), "Failed to list runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

// GetRun handles GET /api/v1/runs/:id.
func (h *AnalyzeHandler) GetRun(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			abortWithError(c, status, "Run not found", nil)
			return
		}
		abortWithError(c, status, "Failed to load run", err)
		return
	}
	c.JSON(http.StatusOK, run)
}
