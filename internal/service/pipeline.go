package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/media"
	"github.com/timmy/reelsense/internal/metrics"
	"github.com/timmy/reelsense/internal/repository"
	"github.com/timmy/reelsense/internal/source"
	"github.com/timmy/reelsense/internal/storage"
)

// ContentAnalyzer produces the merged analysis of one content item.
type ContentAnalyzer interface {
	ProcessCompleteContent(ctx context.Context, in ContentInput) *domain.ContentAnalysis
}

// MediaProber builds media handles from local paths.
type MediaProber interface {
	ProbeVideo(ctx context.Context, path string) (*media.VideoInfo, error)
	ProbeAudio(ctx context.Context, path string) (*domain.AudioFile, error)
}

// ContentStore persists analysis records.
type ContentStore interface {
	Save(ctx context.Context, rec *domain.ContentRecord) error
	ExistsByContentID(ctx context.Context, contentID string) (bool, error)
}

// RunStore records pipeline runs.
type RunStore interface {
	Create(ctx context.Context, run *domain.AnalysisRun) error
	Update(ctx context.Context, run *domain.AnalysisRun) error
}

// EntityIndexer stores entity vectors.
type EntityIndexer interface {
	Upsert(ctx context.Context, points []repository.EntityPoint) error
	DeleteByContentID(ctx context.Context, contentID string) error
}

// AnalyzedCache remembers recently analyzed content ids.
type AnalyzedCache interface {
	IsAnalyzed(ctx context.Context, contentID string) (bool, error)
	MarkAnalyzed(ctx context.Context, contentID string) error
	Forget(ctx context.Context, contentID string) error
}

// PipelineService analyzes saved posts from a source and persists the results.
// Only the analyzer, prober and content store are required; the other
// collaborators are skipped when nil.
type PipelineService struct {
	analyzer ContentAnalyzer
	prober   MediaProber
	contents ContentStore
	runs     RunStore
	index    EntityIndexer
	embedder Embedder
	storage  storage.ObjectStorage
	cache    AnalyzedCache
	metrics  *metrics.Metrics
	workers  int
	batch    int
	archive  bool
}

// PipelineConfig holds configuration for the pipeline service.
type PipelineConfig struct {
	Workers   int
	BatchSize int
	Archive   bool // upload source media and analysis JSON to object storage
}

// PipelineDeps groups the collaborators of a PipelineService.
type PipelineDeps struct {
	Analyzer ContentAnalyzer
	Prober   MediaProber
	Contents ContentStore
	Runs     RunStore
	Index    EntityIndexer
	Embedder Embedder
	Storage  storage.ObjectStorage
	Cache    AnalyzedCache
	Metrics  *metrics.Metrics
}

// NewPipelineService creates a new pipeline service.
func NewPipelineService(deps PipelineDeps, cfg *PipelineConfig) *PipelineService {
	workers, batch := 4, 50
	archive := false
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			batch = cfg.BatchSize
		}
		archive = cfg.Archive
	}
	return &PipelineService{
		analyzer: deps.Analyzer,
		prober:   deps.Prober,
		contents: deps.Contents,
		runs:     deps.Runs,
		index:    deps.Index,
		embedder: deps.Embedder,
		storage:  deps.Storage,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		workers:  workers,
		batch:    batch,
		archive:  archive,
	}
}

// log returns the logger carried by ctx, falling back to the default logger.
func (s *PipelineService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// PipelineStats holds statistics for one run.
type PipelineStats struct {
	RunID          string    `json:"run_id"`
	TotalItems     int64     `json:"total_items"`
	ProcessedItems int64     `json:"processed_items"`
	SkippedItems   int64     `json:"skipped_items"`
	FailedItems    int64     `json:"failed_items"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

// PipelineOptions holds options for a run.
type PipelineOptions struct {
	Force bool // re-analyze posts that were already analyzed
	Limit int  // maximum number of posts; <= 0 means all
}

type processResult struct {
	contentID string
	skipped   bool
	err       error
}

var (
	// ErrAlreadyAnalyzed marks a post skipped because a result already exists.
	ErrAlreadyAnalyzed = errors.New("already analyzed")
	// ErrAnalysisFailed marks a post whose analysis was stored with an error.
	ErrAnalysisFailed = errors.New("analysis failed")
)

// AnalyzeSource analyzes every post of src with a bounded worker pool.
// Each post gets an independent aggregator invocation; a failing post is
// counted and logged without stopping the run.
// Parameters:
//   - ctx: context for cancellation; a cancelled run stops fetching and drains its workers.
//   - src: saved-post source.
//   - opts: run options; nil uses defaults.
//
// Returns:
//   - *PipelineStats: counters of the run.
//   - error: non-nil only if the run could not be recorded or the source failed.
func (s *PipelineService) AnalyzeSource(ctx context.Context, src source.Source, opts *PipelineOptions) (*PipelineStats, error) {
	if opts == nil {
		opts = &PipelineOptions{}
	}

	stats := &PipelineStats{
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
	}
	ctx = logger.SetRunID(ctx, stats.RunID)

	run := &domain.AnalysisRun{
		ID:        stats.RunID,
		SourceID:  src.GetSourceID(),
		Status:    domain.RunStatusRunning,
		StartedAt: stats.StartTime,
	}
	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	fields := logger.Fields{
		logger.FieldSource: src.GetSourceID(),
		"limit":            opts.Limit,
		"force":            opts.Force,
		"workers":          s.workers,
	}
	if counter, ok := src.(source.Counter); ok {
		if available, err := counter.GetTotalCount(ctx); err == nil {
			fields["available"] = available
		}
	}
	s.log(ctx).WithFields(fields).Info("Starting analysis run")

	postsChan := make(chan domain.SavedPost, s.workers*2)
	resultsChan := make(chan *processResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, postsChan, resultsChan, opts)
		}()
	}

	var errLog []string
	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			atomic.AddInt64(&stats.ProcessedItems, 1)
			switch {
			case result.skipped:
				atomic.AddInt64(&stats.SkippedItems, 1)
				s.metrics.IncPipelineItem("skipped")
			case result.err != nil:
				atomic.AddInt64(&stats.FailedItems, 1)
				s.metrics.IncPipelineItem("failed")
				errLog = append(errLog, fmt.Sprintf("%s: %v", result.contentID, result.err))
				s.log(ctx).WithField(logger.FieldContentID, result.contentID).
					WithError(result.err).Error("Failed to analyze post")
			default:
				s.metrics.IncPipelineItem("analyzed")
			}
		}
		close(done)
	}()

	fetchErr := s.feed(ctx, src, opts.Limit, postsChan, stats)

	close(postsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()

	run.TotalItems = stats.TotalItems
	run.ProcessedItems = stats.ProcessedItems
	run.SkippedItems = stats.SkippedItems
	run.FailedItems = stats.FailedItems
	run.CompletedAt = &stats.EndTime
	run.Status = domain.RunStatusCompleted
	if fetchErr != nil {
		run.Status = domain.RunStatusFailed
		errLog = append(errLog, fetchErr.Error())
	}
	run.ErrorLog = strings.Join(errLog, "\n")
	if s.runs != nil {
		// the run context may already be cancelled
		if err := s.runs.Update(context.WithoutCancel(ctx), run); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to update run record")
		}
	}

	s.log(ctx).WithFields(logger.Fields{
		"total":                stats.TotalItems,
		"processed":            stats.ProcessedItems,
		"skipped":              stats.SkippedItems,
		"failed":               stats.FailedItems,
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	}).Info("Analysis run completed")

	if fetchErr != nil {
		return stats, fmt.Errorf("failed to fetch posts: %w", fetchErr)
	}
	return stats, nil
}

// feed pages through src and hands posts to the workers until the source is
// exhausted, the limit is reached or ctx is cancelled.
func (s *PipelineService) feed(ctx context.Context, src source.Source, limit int, out chan<- domain.SavedPost, stats *PipelineStats) error {
	cursor := ""
	fetched := 0
	for ctx.Err() == nil {
		batchLimit := s.batch
		if limit > 0 {
			remaining := limit - fetched
			if remaining <= 0 {
				return nil
			}
			batchLimit = min(batchLimit, remaining)
		}

		posts, nextCursor, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			return nil
		}

		atomic.AddInt64(&stats.TotalItems, int64(len(posts)))
		fetched += len(posts)

		for _, post := range posts {
			select {
			case out <- post:
			case <-ctx.Done():
				return nil
			}
		}

		if nextCursor == "" {
			return nil
		}
		cursor = nextCursor
	}
	return nil
}

func (s *PipelineService) worker(ctx context.Context, posts <-chan domain.SavedPost, results chan<- *processResult, opts *PipelineOptions) {
	for post := range posts {
		if ctx.Err() != nil {
			continue
		}
		result := &processResult{contentID: post.ContentID}
		_, err := s.AnalyzePost(ctx, post, opts.Force)
		if errors.Is(err, ErrAlreadyAnalyzed) {
			result.skipped = true
		} else {
			result.err = err
		}
		results <- result
	}
}

// AnalyzePost analyzes one saved post and persists the result.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - post: post to analyze; ContentID is required.
//   - force: re-analyze even if a result exists.
//
// Returns:
//   - *domain.ContentAnalysis: the merged analysis; also returned when persistence fails.
//   - error: ErrAlreadyAnalyzed when skipped, ErrAnalysisFailed when the stored
//     analysis carries an error, or a persistence failure.
func (s *PipelineService) AnalyzePost(ctx context.Context, post domain.SavedPost, force bool) (*domain.ContentAnalysis, error) {
	if strings.TrimSpace(post.ContentID) == "" {
		return nil, errors.New("post without content id")
	}
	ctx = logger.SetContentID(ctx, post.ContentID)

	if force {
		if s.cache != nil {
			if err := s.cache.Forget(ctx, post.ContentID); err != nil {
				s.log(ctx).WithError(err).Warn("Failed to clear cache mark")
			}
		}
	} else {
		analyzed, err := s.alreadyAnalyzed(ctx, post.ContentID)
		if err != nil {
			return nil, err
		}
		if analyzed {
			return nil, ErrAlreadyAnalyzed
		}
	}

	analysis := s.analyzer.ProcessCompleteContent(ctx, s.buildInput(ctx, post))
	if err := s.persist(ctx, post, analysis); err != nil {
		return analysis, err
	}
	if analysis.Error != "" {
		return analysis, fmt.Errorf("%w: %s", ErrAnalysisFailed, analysis.Error)
	}

	if s.cache != nil {
		if err := s.cache.MarkAnalyzed(ctx, post.ContentID); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to mark post analyzed")
		}
	}
	return analysis, nil
}

// alreadyAnalyzed consults the cache first and the database second.
func (s *PipelineService) alreadyAnalyzed(ctx context.Context, contentID string) (bool, error) {
	if s.cache != nil {
		hit, err := s.cache.IsAnalyzed(ctx, contentID)
		if err != nil {
			s.log(ctx).WithError(err).Warn("Cache lookup failed, checking database")
		} else if hit {
			return true, nil
		}
	}

	exists, err := s.contents.ExistsByContentID(ctx, contentID)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	if exists && s.cache != nil {
		if err := s.cache.MarkAnalyzed(ctx, contentID); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to mark post analyzed")
		}
	}
	return exists, nil
}

// buildInput probes the post's media. A probe failure still hands the path to
// the analyzer so the failing modality is reported the usual way.
func (s *PipelineService) buildInput(ctx context.Context, post domain.SavedPost) ContentInput {
	in := ContentInput{
		ContentID: post.ContentID,
		Caption:   post.Caption,
	}
	if len(post.Hashtags) > 0 {
		in.Hashtags = post.Hashtags
	}

	if post.VideoPath != "" {
		video := domain.VideoFile{Path: post.VideoPath}
		if info, err := s.prober.ProbeVideo(ctx, post.VideoPath); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to probe video")
		} else {
			video = info.VideoFile
		}
		in.Video = &video
		return in
	}

	if post.AudioPath != "" {
		audio := domain.AudioFile{Path: post.AudioPath}
		if info, err := s.prober.ProbeAudio(ctx, post.AudioPath); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to probe audio")
		} else {
			audio = *info
		}
		in.Audio = &audio
	}
	return in
}

// persist archives, indexes and saves an analysis. External calls run first;
// once something is written, later failures roll back what was written.
func (s *PipelineService) persist(ctx context.Context, post domain.SavedPost, analysis *domain.ContentAnalysis) error {
	// Failed analyses are stored for inspection but neither archived nor indexed.
	healthy := analysis.Error == ""

	var points []repository.EntityPoint
	if healthy && s.index != nil && s.embedder != nil && len(analysis.Entities) > 0 {
		var err error
		points, err = s.embedEntities(ctx, post.ContentID, analysis.Entities)
		if err != nil {
			return fmt.Errorf("failed to embed entities: %w", err)
		}
	}

	rec, err := domain.NewContentRecord(uuid.New().String(), &post, analysis)
	if err != nil {
		return err
	}

	var uploaded []string
	rollbackUploads := func() {
		for _, key := range uploaded {
			if delErr := s.storage.Delete(ctx, key); delErr != nil {
				s.log(ctx).WithField("storage_key", key).WithError(delErr).Error("Failed to rollback storage upload")
			}
		}
	}

	if healthy && s.archive && s.storage != nil {
		mediaKey, keys, err := s.archiveMedia(ctx, post, analysis)
		uploaded = keys
		if err != nil {
			rollbackUploads()
			return fmt.Errorf("failed to archive media: %w", err)
		}
		rec.MediaKey = mediaKey
	}

	if len(points) > 0 {
		if err := s.index.Upsert(ctx, points); err != nil {
			rollbackUploads()
			return fmt.Errorf("failed to index entities: %w", err)
		}
	}

	if err := s.contents.Save(ctx, rec); err != nil {
		if len(points) > 0 {
			if delErr := s.index.DeleteByContentID(ctx, post.ContentID); delErr != nil {
				s.log(ctx).WithError(delErr).Error("Failed to rollback entity index")
			}
		}
		rollbackUploads()
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

func (s *PipelineService) embedEntities(ctx context.Context, contentID string, entities []domain.Entity) ([]repository.EntityPoint, error) {
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = EntityEmbeddingText(e)
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(entities) {
		return nil, fmt.Errorf("%w: got %d vectors for %d entities", domain.ErrBackend, len(vectors), len(entities))
	}

	points := make([]repository.EntityPoint, len(entities))
	for i, e := range entities {
		points[i] = repository.EntityPoint{ContentID: contentID, Entity: e, Vector: vectors[i]}
	}
	return points, nil
}

// archiveMedia uploads the post's media (unless already stored) and the
// analysis JSON. It returns the key of the primary media file and every key
// it wrote.
func (s *PipelineService) archiveMedia(ctx context.Context, post domain.SavedPost, analysis *domain.ContentAnalysis) (string, []string, error) {
	var uploaded []string
	mediaKey := ""

	for _, m := range []struct{ kind, path string }{
		{"video", post.VideoPath},
		{"audio", post.AudioPath},
	} {
		if m.path == "" {
			continue
		}
		key := storage.MediaKey(post.ContentID, m.kind, m.path)
		if mediaKey == "" {
			mediaKey = key
		}

		exists, err := s.storage.Exists(ctx, key)
		if err != nil {
			return "", uploaded, err
		}
		if exists {
			logger.CtxDebug(ctx, "Media %s already archived", key)
			continue
		}
		if err := storage.UploadFile(ctx, s.storage, key, m.path); err != nil {
			return "", uploaded, err
		}
		uploaded = append(uploaded, key)
	}

	body, err := json.Marshal(analysis)
	if err != nil {
		return "", uploaded, err
	}
	key := storage.AnalysisKey(post.ContentID)
	if err := s.storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return "", uploaded, err
	}
	uploaded = append(uploaded, key)

	return mediaKey, uploaded, nil
}
