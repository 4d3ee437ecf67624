package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/repository"
)

type fakeReader struct {
	records []domain.ContentRecord
	called  string
	limit   int
	offset  int
}

func (f *fakeReader) GetByContentID(ctx context.Context, contentID string) (*domain.ContentRecord, error) {
	for i := range f.records {
		if f.records[i].ContentID == contentID {
			return &f.records[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReader) SearchByCategory(ctx context.Context, category string, limit, offset int) ([]domain.ContentRecord, error) {
	f.called, f.limit, f.offset = "category:"+category, limit, offset
	return f.records, nil
}

func (f *fakeReader) SearchByKeywords(ctx context.Context, keywords []string, limit, offset int) ([]domain.ContentRecord, error) {
	f.called, f.limit, f.offset = "keywords", limit, offset
	return f.records, nil
}

func (f *fakeReader) ListRecent(ctx context.Context, limit, offset int) ([]domain.ContentRecord, error) {
	f.called, f.limit, f.offset = "recent", limit, offset
	return f.records, nil
}

func (f *fakeReader) Count(ctx context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

type fakeSearcher struct {
	hits   []repository.EntityHit
	filter *repository.EntityFilter
	topK   int
	err    error
}

func (f *fakeSearcher) Search(ctx context.Context, vector []float32, topK int, filter *repository.EntityFilter) ([]repository.EntityHit, error) {
	f.topK, f.filter = topK, filter
	return f.hits, f.err
}

func storedRecord(t *testing.T, contentID, mediaKey string) domain.ContentRecord {
	t.Helper()
	analysis := &domain.ContentAnalysis{
		ContentID:        contentID,
		Text:             &domain.TextAnalysis{Topics: []string{"food"}, Keywords: []string{"pizza", "oven"}},
		Entities:         []domain.Entity{{Name: "Pizza", Category: domain.CategoryProduct, Confidence: 0.88}},
		ConfidenceScores: domain.ConfidenceScores{domain.ScoreOverall: 0.7},
		ProcessedAt:      time.Now(),
	}
	rec, err := domain.NewContentRecord("id-"+contentID, &domain.SavedPost{ContentID: contentID, Caption: "pizza"}, analysis)
	if err != nil {
		t.Fatal(err)
	}
	rec.MediaKey = mediaKey
	return *rec
}

func TestSearchService_GetContent(t *testing.T) {
	reader := &fakeReader{records: []domain.ContentRecord{storedRecord(t, "post-1", "media/post-1/video.mp4")}}
	s := NewSearchService(reader, nil, nil, newMemStorage(), nil)
	ctx := context.Background()

	got, err := s.GetContent(ctx, "post-1")
	if err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if got.MediaURL != "mem://media/post-1/video.mp4" {
		t.Errorf("MediaURL = %q", got.MediaURL)
	}
	if len(got.Keywords) != 2 || got.Topics[0] != "food" || got.Overall != 0.7 {
		t.Errorf("summary = %+v", got.ContentSummary)
	}
	if got.Analysis == nil || len(got.Analysis.Entities) != 1 {
		t.Errorf("Analysis = %+v", got.Analysis)
	}

	if _, err := s.GetContent(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSearchService_ListContent(t *testing.T) {
	tests := []struct {
		name       string
		req        ListRequest
		wantCall   string
		wantLimit  int
		wantOffset int
	}{
		{"recent by default", ListRequest{}, "recent", 20, 0},
		{"category wins", ListRequest{Category: "food", Keywords: []string{"pizza"}}, "category:food", 20, 0},
		{"keywords", ListRequest{Keywords: []string{"pizza"}, Limit: 5, Offset: 10}, "keywords", 5, 10},
		{"limit clamped", ListRequest{Limit: 500, Offset: -3}, "recent", 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{records: []domain.ContentRecord{storedRecord(t, "post-1", "")}}
			s := NewSearchService(reader, nil, nil, nil, nil)
			resp, err := s.ListContent(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("ListContent() error = %v", err)
			}
			if reader.called != tt.wantCall || reader.limit != tt.wantLimit || reader.offset != tt.wantOffset {
				t.Errorf("called %s(%d, %d), want %s(%d, %d)", reader.called, reader.limit, reader.offset, tt.wantCall, tt.wantLimit, tt.wantOffset)
			}
			if resp.Total != 1 || resp.Results[0].MediaURL != "" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestSearchService_SearchEntities(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without index", func(t *testing.T) {
		s := NewSearchService(&fakeReader{}, nil, &fakeEmbedder{}, nil, nil)
		if _, err := s.SearchEntities(ctx, &EntitySearchRequest{Query: "pizza"}); !errors.Is(err, ErrSearchDisabled) {
			t.Errorf("error = %v, want ErrSearchDisabled", err)
		}
	})

	t.Run("filters by threshold and category", func(t *testing.T) {
		searcher := &fakeSearcher{hits: []repository.EntityHit{
			{ContentID: "post-1", Entity: domain.Entity{Name: "Pizza"}, Score: 0.9},
			{ContentID: "post-2", Entity: domain.Entity{Name: "Pasta"}, Score: 0.2},
		}}
		s := NewSearchService(&fakeReader{}, searcher, &fakeEmbedder{}, nil, &SearchConfig{ScoreThreshold: 0.5})
		resp, err := s.SearchEntities(ctx, &EntitySearchRequest{Query: " pizza ", Category: "product", TopK: 1000})
		if err != nil {
			t.Fatalf("SearchEntities() error = %v", err)
		}
		if resp.Total != 1 || resp.Results[0].ContentID != "post-1" || resp.Query != "pizza" {
			t.Errorf("response = %+v", resp)
		}
		if searcher.topK != 100 || searcher.filter == nil || searcher.filter.Category != "product" {
			t.Errorf("topK = %d, filter = %+v", searcher.topK, searcher.filter)
		}
	})

	t.Run("index failure is a backend error", func(t *testing.T) {
		s := NewSearchService(&fakeReader{}, &fakeSearcher{err: errors.New("unavailable")}, &fakeEmbedder{}, nil, nil)
		if _, err := s.SearchEntities(ctx, &EntitySearchRequest{Query: "pizza"}); !errors.Is(err, domain.ErrBackend) {
			t.Errorf("error = %v, want ErrBackend", err)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		s := NewSearchService(&fakeReader{}, &fakeSearcher{}, &fakeEmbedder{}, nil, nil)
		if _, err := s.SearchEntities(ctx, &EntitySearchRequest{Query: "   "}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSearchService_OpenMedia(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	store.objects["media/post-1/video.mp4"] = []byte("mp4 bytes")
	reader := &fakeReader{records: []domain.ContentRecord{
		storedRecord(t, "post-1", "media/post-1/video.mp4"),
		storedRecord(t, "post-2", ""),
		storedRecord(t, "post-3", "media/post-3/video.mp4"),
	}}
	s := NewSearchService(reader, nil, nil, store, nil)

	obj, err := s.OpenMedia(ctx, "post-1")
	if err != nil {
		t.Fatalf("OpenMedia() error = %v", err)
	}
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	if string(data) != "mp4 bytes" || obj.ContentType != "video/mp4" {
		t.Errorf("got %q (%s)", data, obj.ContentType)
	}

	if _, err := s.OpenMedia(ctx, "post-2"); !errors.Is(err, ErrNoMedia) {
		t.Errorf("error = %v, want ErrNoMedia", err)
	}
	if _, err := s.OpenMedia(ctx, "post-3"); !errors.Is(err, ErrNoMedia) {
		t.Errorf("error = %v, want ErrNoMedia for a key missing from storage", err)
	}
	if _, err := s.OpenMedia(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if _, err := NewSearchService(reader, nil, nil, nil, nil).OpenMedia(ctx, "post-1"); !errors.Is(err, ErrNoMedia) {
		t.Errorf("error = %v, want ErrNoMedia without storage", err)
	}
}
