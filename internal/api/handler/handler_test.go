package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/repository"
	"github.com/timmy/reelsense/internal/service"
	"github.com/timmy/reelsense/internal/source"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQuerier struct {
	lastList service.ListRequest
	hits     []repository.EntityHit
	err      error
}

func (f *fakeQuerier) GetContent(ctx context.Context, contentID string) (*service.ContentDetail, error) {
	if contentID != "post-1" {
		return nil, fmt.Errorf("%w: content %s", domain.ErrNotFound, contentID)
	}
	return &service.ContentDetail{
		ContentSummary: service.ContentSummary{ContentID: "post-1", Topics: []string{"food"}, Overall: 0.7},
		Analysis:       &domain.ContentAnalysis{ContentID: "post-1"},
	}, nil
}

func (f *fakeQuerier) ListContent(ctx context.Context, req service.ListRequest) (*service.ContentListResponse, error) {
	f.lastList = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.ContentListResponse{Results: []service.ContentSummary{{ContentID: "post-1"}}, Total: 1, Limit: 20}, nil
}

func (f *fakeQuerier) SearchEntities(ctx context.Context, req *service.EntitySearchRequest) (*service.EntitySearchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.EntitySearchResponse{Results: f.hits, Total: len(f.hits), Query: req.Query}, nil
}

func (f *fakeQuerier) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"total_content": 3}, nil
}

func (f *fakeQuerier) OpenMedia(ctx context.Context, contentID string) (*service.MediaObject, error) {
	switch contentID {
	case "post-1":
		return &service.MediaObject{Body: io.NopCloser(strings.NewReader("mp4 bytes")), ContentType: "video/mp4"}, nil
	case "post-2":
		return nil, fmt.Errorf("%w: content %s", service.ErrNoMedia, contentID)
	default:
		return nil, fmt.Errorf("%w: content %s", domain.ErrNotFound, contentID)
	}
}

type fakePipeline struct {
	mu        sync.Mutex
	postErr   error
	sourceErr error
	sources   []string
	release   chan struct{}
}

func (f *fakePipeline) AnalyzeSource(ctx context.Context, src source.Source, opts *service.PipelineOptions) (*service.PipelineStats, error) {
	f.mu.Lock()
	f.sources = append(f.sources, src.GetSourceID())
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	posts, _, err := src.FetchBatch(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	return &service.PipelineStats{RunID: "run-1", TotalItems: int64(len(posts)), ProcessedItems: int64(len(posts))}, f.sourceErr
}

func (f *fakePipeline) AnalyzePost(ctx context.Context, post domain.SavedPost, force bool) (*domain.ContentAnalysis, error) {
	analysis := &domain.ContentAnalysis{ContentID: post.ContentID, ConfidenceScores: domain.ConfidenceScores{domain.ScoreOverall: 0.5}}
	if errors.Is(f.postErr, service.ErrAnalysisFailed) {
		analysis.Error = "boom"
	}
	if errors.Is(f.postErr, service.ErrAlreadyAnalyzed) {
		return nil, f.postErr
	}
	return analysis, f.postErr
}

type fakeRuns struct{}

func (fakeRuns) GetByID(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	if id != "run-1" {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, id)
	}
	return &domain.AnalysisRun{ID: "run-1", Status: domain.RunStatusCompleted, StartedAt: time.Now()}, nil
}

func (fakeRuns) ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRun, error) {
	return []domain.AnalysisRun{{ID: "run-1"}}, nil
}

func newTestEngine(q ContentQuerier, p PostAnalyzer, resolve SourceResolver) *gin.Engine {
	r := gin.New()
	ch := NewContentHandler(q)
	ah := NewAnalyzeHandler(p, fakeRuns{}, resolve)
	r.GET("/content", ch.ListContent)
	r.GET("/content/recent", ch.RecentContent)
	r.GET("/content/:id", ch.GetContent)
	r.GET("/content/:id/media", ch.GetMedia)
	r.POST("/entities/search", ch.SearchEntities)
	r.GET("/entities/search", ch.SearchEntitiesGet)
	r.GET("/stats", ch.GetStats)
	r.POST("/analyze", ah.Analyze)
	r.POST("/analyze/export", ah.RunExport)
	r.GET("/analyze/status", ah.RunStatus)
	r.GET("/runs", ah.ListRuns)
	r.GET("/runs/:id", ah.GetRun)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestContentHandler(t *testing.T) {
	q := &fakeQuerier{hits: []repository.EntityHit{{ContentID: "post-1", Entity: domain.Entity{Name: "Pizza"}, Score: 0.9}}}
	r := newTestEngine(q, &fakePipeline{}, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"get content", http.MethodGet, "/content/post-1", "", http.StatusOK, `"content_id":"post-1"`},
		{"missing content", http.MethodGet, "/content/nope", "", http.StatusNotFound, "Content not found"},
		{"media", http.MethodGet, "/content/post-1/media", "", http.StatusOK, "mp4 bytes"},
		{"media not archived", http.MethodGet, "/content/post-2/media", "", http.StatusNotFound, "Media not found"},
		{"list", http.MethodGet, "/content?category=food&limit=5", "", http.StatusOK, `"total":1`},
		{"recent", http.MethodGet, "/content/recent", "", http.StatusOK, `"results"`},
		{"entity search", http.MethodPost, "/entities/search", `{"query":"pizza","top_k":5}`, http.StatusOK, `"name":"Pizza"`},
		{"entity search without query", http.MethodPost, "/entities/search", `{}`, http.StatusBadRequest, "Invalid request"},
		{"entity search get", http.MethodGet, "/entities/search?q=pizza", "", http.StatusOK, `"query":"pizza"`},
		{"entity search get without q", http.MethodGet, "/entities/search", "", http.StatusBadRequest, "'q' is required"},
		{"stats", http.MethodGet, "/stats", "", http.StatusOK, `"total_content":3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestContentHandler_ListKeywords(t *testing.T) {
	q := &fakeQuerier{}
	r := newTestEngine(q, &fakePipeline{}, nil)

	do(r, http.MethodGet, "/content?keyword=pizza,%20oven&keyword=naples&offset=10", "")
	want := []string{"pizza", "oven", "naples"}
	if len(q.lastList.Keywords) != len(want) {
		t.Fatalf("Keywords = %v, want %v", q.lastList.Keywords, want)
	}
	for i := range want {
		if q.lastList.Keywords[i] != want[i] {
			t.Errorf("Keywords = %v, want %v", q.lastList.Keywords, want)
		}
	}
	if q.lastList.Offset != 10 || q.lastList.Limit != 20 {
		t.Errorf("limit/offset = %d/%d", q.lastList.Limit, q.lastList.Offset)
	}
}

func TestContentHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrSearchDisabled, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: qdrant", domain.ErrBackend), http.StatusBadGateway},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := newTestEngine(&fakeQuerier{err: tt.err}, &fakePipeline{}, nil)
		if w := do(r, http.MethodGet, "/entities/search?q=x", ""); w.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestAnalyzeHandler_Analyze(t *testing.T) {
	tests := []struct {
		name       string
		postErr    error
		body       string
		wantStatus int
		wantBody   string
	}{
		{"single post", nil, `{"posts":[{"content_id":"p1","caption":"pizza"}]}`, http.StatusOK, `"analysis":{`},
		{"single post skipped", service.ErrAlreadyAnalyzed, `{"posts":[{"content_id":"p1"}]}`, http.StatusOK, `"skipped":true`},
		{"single post failed analysis", fmt.Errorf("%w: boom", service.ErrAnalysisFailed), `{"posts":[{"content_id":"p1"}]}`, http.StatusOK, `"error":"boom"`},
		{"single post persistence error", errors.New("disk full"), `{"posts":[{"content_id":"p1"}]}`, http.StatusInternalServerError, "disk full"},
		{"batch", nil, `{"posts":[{"content_id":"p1"},{"content_id":"p2"}]}`, http.StatusOK, `"total_items":2`},
		{"empty", nil, `{"posts":[]}`, http.StatusBadRequest, "Invalid request"},
		{"missing id", nil, `{"posts":[{"caption":"x"}]}`, http.StatusBadRequest, "content_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestEngine(&fakeQuerier{}, &fakePipeline{postErr: tt.postErr}, nil)
			w := do(r, http.MethodPost, "/analyze", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}

	t.Run("too many posts", func(t *testing.T) {
		posts := make([]string, maxPostsPerRequest+1)
		for i := range posts {
			posts[i] = fmt.Sprintf(`{"content_id":"p%d"}`, i)
		}
		r := newTestEngine(&fakeQuerier{}, &fakePipeline{}, nil)
		w := do(r, http.MethodPost, "/analyze", `{"posts":[`+strings.Join(posts, ",")+`]}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestAnalyzeHandler_RunExport(t *testing.T) {
	resolve := func(id string) source.Source {
		return source.NewStatic("export:"+id, []domain.SavedPost{{ContentID: "a"}, {ContentID: "b"}, {ContentID: "c"}})
	}

	t.Run("not configured", func(t *testing.T) {
		r := newTestEngine(&fakeQuerier{}, &fakePipeline{}, nil)
		if w := do(r, http.MethodPost, "/analyze/export", `{"export":"2026-10"}`); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})

	t.Run("runs and records status", func(t *testing.T) {
		p := &fakePipeline{}
		r := newTestEngine(&fakeQuerier{}, p, resolve)
		w := do(r, http.MethodPost, "/analyze/export", `{"export":"2026-10","limit":10}`)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_items":3`) {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if len(p.sources) != 1 || p.sources[0] != "export:2026-10" {
			t.Errorf("sources = %v", p.sources)
		}

		var status RunStatusResponse
		w = do(r, http.MethodGet, "/analyze/status", "")
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatal(err)
		}
		if status.IsRunning || status.LastRunStatus != "success" || status.CurrentStats == nil || status.LastRunTime == "" {
			t.Errorf("status = %+v", status)
		}
	})

	t.Run("rejects concurrent runs", func(t *testing.T) {
		p := &fakePipeline{release: make(chan struct{})}
		r := newTestEngine(&fakeQuerier{}, p, resolve)

		first := make(chan int)
		go func() {
			first <- do(r, http.MethodPost, "/analyze/export", `{"export":"one"}`).Code
		}()
		for i := 0; ; i++ {
			p.mu.Lock()
			started := len(p.sources) == 1
			p.mu.Unlock()
			if started {
				break
			}
			if i > 200 {
				t.Fatal("first run did not start")
			}
			time.Sleep(5 * time.Millisecond)
		}

		if w := do(r, http.MethodPost, "/analyze/export", `{"export":"two"}`); w.Code != http.StatusConflict {
			t.Errorf("second run status = %d, want 409", w.Code)
		}
		close(p.release)
		if code := <-first; code != http.StatusOK {
			t.Errorf("first run status = %d, want 200", code)
		}
	})

	t.Run("failed run", func(t *testing.T) {
		p := &fakePipeline{sourceErr: errors.New("manifest unreadable")}
		r := newTestEngine(&fakeQuerier{}, p, resolve)
		if w := do(r, http.MethodPost, "/analyze/export", `{"export":"x"}`); w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
		w := do(r, http.MethodGet, "/analyze/status", "")
		if !strings.Contains(w.Body.String(), "failed: manifest unreadable") {
			t.Errorf("status body = %s", w.Body.String())
		}
	})
}

func TestAnalyzeHandler_Runs(t *testing.T) {
	r := newTestEngine(&fakeQuerier{}, &fakePipeline{}, nil)

	if w := do(r, http.MethodGet, "/runs", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":1`) {
		t.Errorf("list runs: %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/runs/run-1", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"completed"`) {
		t.Errorf("get run: %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/runs/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantBody   string
	}{
		{"no checks", nil, http.StatusOK, `"status":"ok"`},
		{"healthy", map[string]HealthCheck{"db": func(context.Context) error { return nil }}, http.StatusOK, `"db":"ok"`},
		{"degraded", map[string]HealthCheck{
			"db":    func(context.Context) error { return nil },
			"redis": func(context.Context) error { return errors.New("connection refused") },
		}, http.StatusServiceUnavailable, `"redis":"connection refused"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(tt.checks).Health)
			w := do(r, http.MethodGet, "/health", "")
			if w.Code != tt.wantStatus || !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}
