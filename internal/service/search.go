package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/repository"
	"github.com/timmy/reelsense/internal/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ErrSearchDisabled is returned by entity search when no index is configured.
var ErrSearchDisabled = errors.New("entity search is not configured")

// ContentReader reads stored analyses.
type ContentReader interface {
	GetByContentID(ctx context.Context, contentID string) (*domain.ContentRecord, error)
	SearchByCategory(ctx context.Context, category string, limit, offset int) ([]domain.ContentRecord, error)
	SearchByKeywords(ctx context.Context, keywords []string, limit, offset int) ([]domain.ContentRecord, error)
	ListRecent(ctx context.Context, limit, offset int) ([]domain.ContentRecord, error)
	Count(ctx context.Context) (int64, error)
}

// EntitySearcher finds entities by vector similarity.
type EntitySearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter *repository.EntityFilter) ([]repository.EntityHit, error)
}

// SearchConfig holds configuration for the search service.
type SearchConfig struct {
	ScoreThreshold float32
}

// SearchService answers queries over analyzed content.
type SearchService struct {
	contents       ContentReader
	index          EntitySearcher
	embedder       Embedder
	storage        storage.ObjectStorage
	scoreThreshold float32
}

// NewSearchService creates a new search service.
// Parameters:
//   - contents: repository of stored analyses.
//   - index: entity index; nil disables entity search.
//   - embedder: query embedder; nil disables entity search.
//   - objectStorage: optional storage used to build media URLs.
//   - cfg: search configuration settings.
//
// Returns:
//   - *SearchService: initialized search service.
func NewSearchService(contents ContentReader, index EntitySearcher, embedder Embedder, objectStorage storage.ObjectStorage, cfg *SearchConfig) *SearchService {
	var threshold float32
	if cfg != nil {
		threshold = cfg.ScoreThreshold
	}
	return &SearchService{
		contents:       contents,
		index:          index,
		embedder:       embedder,
		storage:        objectStorage,
		scoreThreshold: threshold,
	}
}

// ContentSummary is the list view of a stored analysis.
type ContentSummary struct {
	ContentID   string    `json:"content_id"`
	SourceURL   string    `json:"source_url,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	Topics      []string  `json:"topics"`
	Keywords    []string  `json:"keywords"`
	Overall     float64   `json:"overall"`
	Error       string    `json:"error,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ContentDetail is a stored analysis with its summary.
type ContentDetail struct {
	ContentSummary
	Analysis *domain.ContentAnalysis `json:"analysis"`
}

// ListRequest selects stored analyses. Category takes precedence over
// Keywords; with neither, the most recent analyses are listed.
type ListRequest struct {
	Category string
	Keywords []string
	Limit    int
	Offset   int
}

// ContentListResponse is a page of summaries.
type ContentListResponse struct {
	Results []ContentSummary `json:"results"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// EntitySearchRequest is a free-text entity query.
type EntitySearchRequest struct {
	Query    string `json:"query" binding:"required"`
	TopK     int    `json:"top_k"`
	Category string `json:"category,omitempty"`
}

// EntitySearchResponse holds entity matches.
type EntitySearchResponse struct {
	Results []repository.EntityHit `json:"results"`
	Total   int                    `json:"total"`
	Query   string                 `json:"query"`
}

// GetContent returns the stored analysis of contentID.
// Returns an error wrapping domain.ErrNotFound if none exists.
func (s *SearchService) GetContent(ctx context.Context, contentID string) (*ContentDetail, error) {
	rec, err := s.contents.GetByContentID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	analysis, err := rec.ToAnalysis()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorrupt, err)
	}
	return &ContentDetail{ContentSummary: s.summarize(ctx, rec), Analysis: analysis}, nil
}

// ListContent lists stored analyses by category, keywords or recency.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: selection; limit is clamped to [1, 100] with 20 as default.
//
// Returns:
//   - *ContentListResponse: one page of summaries, newest first.
//   - error: non-nil if the query fails.
func (s *SearchService) ListContent(ctx context.Context, req ListRequest) (*ContentListResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	offset := max(req.Offset, 0)

	var (
		records []domain.ContentRecord
		err     error
	)
	switch {
	case strings.TrimSpace(req.Category) != "":
		records, err = s.contents.SearchByCategory(ctx, req.Category, limit, offset)
	case len(req.Keywords) > 0:
		records, err = s.contents.SearchByKeywords(ctx, req.Keywords, limit, offset)
	default:
		records, err = s.contents.ListRecent(ctx, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	results := make([]ContentSummary, len(records))
	for i := range records {
		results[i] = s.summarize(ctx, &records[i])
	}
	return &ContentListResponse{Results: results, Total: len(results), Limit: limit, Offset: offset}, nil
}

// SearchEntities embeds the query and returns the closest indexed entities.
// Hits under the configured score threshold are dropped.
func (s *SearchService) SearchEntities(ctx context.Context, req *EntitySearchRequest) (*EntitySearchResponse, error) {
	if s.index == nil || s.embedder == nil {
		return nil, ErrSearchDisabled
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultListLimit
	}
	topK = min(topK, maxListLimit)

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter *repository.EntityFilter
	if req.Category != "" {
		filter = &repository.EntityFilter{Category: domain.EntityCategory(req.Category)}
	}
	hits, err := s.index.Search(ctx, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}

	results := make([]repository.EntityHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < s.scoreThreshold {
			continue
		}
		results = append(results, hit)
	}

	logger.With(logger.Fields{"query": query}).WithCount(len(results)).Debug(ctx, "Entity search completed")
	return &EntitySearchResponse{Results: results, Total: len(results), Query: query}, nil
}

// ErrNoMedia is returned by OpenMedia when the content has no archived media.
var ErrNoMedia = errors.New("no archived media")

// MediaObject is an open archived media file.
type MediaObject struct {
	Body        io.ReadCloser
	ContentType string
	Key         string
}

// OpenMedia opens the archived source media of contentID. The caller closes Body.
func (s *SearchService) OpenMedia(ctx context.Context, contentID string) (*MediaObject, error) {
	rec, err := s.contents.GetByContentID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if s.storage == nil || rec.MediaKey == "" {
		return nil, fmt.Errorf("%w: content %s", ErrNoMedia, contentID)
	}
	body, err := s.storage.Download(ctx, rec.MediaKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: content %s: %v", ErrNoMedia, contentID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	return &MediaObject{Body: body, ContentType: storage.ContentType(rec.MediaKey), Key: rec.MediaKey}, nil
}

// GetStats returns content statistics.
func (s *SearchService) GetStats(ctx context.Context) (map[string]interface{}, error) {
	total, err := s.contents.Count(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"total_content":  total,
		"entity_search":  s.index != nil && s.embedder != nil,
		"media_archived": s.storage != nil,
	}, nil
}

func (s *SearchService) summarize(ctx context.Context, rec *domain.ContentRecord) ContentSummary {
	summary := ContentSummary{
		ContentID:   rec.ContentID,
		SourceURL:   rec.SourceURL,
		Caption:     rec.Caption,
		Topics:      decodeStrings(ctx, rec.Topics),
		Keywords:    decodeStrings(ctx, rec.Keywords),
		Overall:     rec.Overall,
		Error:       rec.Error,
		ProcessedAt: rec.ProcessedAt,
	}
	if rec.MediaKey != "" && s.storage != nil {
		summary.MediaURL = s.storage.GetURL(rec.MediaKey)
	}
	return summary
}

func decodeStrings(ctx context.Context, raw []byte) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.CtxWarn(ctx, "Failed to decode stored list: %v", err)
		return []string{}
	}
	return out
}
