package source

import (
	"context"
	"fmt"
	"strconv"

	"github.com/timmy/reelsense/internal/domain"
)

// Static serves a fixed list of posts, such as the body of an analyze request.
type Static struct {
	id    string
	posts []domain.SavedPost
}

// NewStatic creates a Static source.
func NewStatic(id string, posts []domain.SavedPost) *Static {
	return &Static{id: id, posts: posts}
}

func (s *Static) GetSourceID() string { return s.id }

func (s *Static) GetDisplayName() string {
	return fmt.Sprintf("Static (%d posts)", len(s.posts))
}

// GetTotalCount returns the number of posts.
func (s *Static) GetTotalCount(ctx context.Context) (int, error) {
	return len(s.posts), nil
}

// FetchBatch pages through the posts with an index cursor.
func (s *Static) FetchBatch(ctx context.Context, cursor string, limit int) ([]domain.SavedPost, string, error) {
	return Page(s.posts, cursor, limit)
}

// Page slices posts from the index encoded in cursor. limit <= 0 returns the rest.
func Page(posts []domain.SavedPost, cursor string, limit int) ([]domain.SavedPost, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(posts) {
		return []domain.SavedPost{}, "", nil
	}

	end := len(posts)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	next := ""
	if end < len(posts) {
		next = strconv.Itoa(end)
	}
	return posts[start:end], next, nil
}
