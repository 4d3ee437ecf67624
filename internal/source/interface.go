package source

import (
	"context"

	"github.com/timmy/reelsense/internal/domain"
)

// Source hands saved posts to the analysis pipeline.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: stable source identifier.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly source name.
	GetDisplayName() string

	// FetchBatch fetches a batch of saved posts starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of posts to fetch.
	// Returns:
	//   - posts: batch of saved posts.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (posts []domain.SavedPost, nextCursor string, err error)
}

// Counter is implemented by sources that know their size up front.
type Counter interface {
	GetTotalCount(ctx context.Context) (int, error)
}
