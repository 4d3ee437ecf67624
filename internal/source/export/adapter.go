package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/source"
)

const (
	// ManifestFileName is the JSONL manifest written by the retrieval collaborator.
	ManifestFileName = "manifest.jsonl"
	// MediaDir holds the downloaded video and audio files.
	MediaDir = "media"
)

// ManifestItem is one line of manifest.jsonl.
type ManifestItem struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
	Video    string   `json:"video"`
	Audio    string   `json:"audio"`
	SavedAt  string   `json:"saved_at"`
}

// Adapter reads saved posts from an export directory:
//
//	<base>/<export id>/manifest.jsonl
//	<base>/<export id>/media/<files>
type Adapter struct {
	basePath string
	exportID string
	posts    []domain.SavedPost
	loaded   bool
}

// NewAdapter creates a new export adapter.
// Parameters:
//   - basePath: directory holding export directories.
//   - exportID: name of the export directory.
//
// Returns:
//   - *Adapter: initialized export adapter.
func NewAdapter(basePath, exportID string) *Adapter {
	return &Adapter{
		basePath: basePath,
		exportID: exportID,
	}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return "export:" + a.exportID
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Export (%s)", a.exportID)
}

// FetchBatch fetches a batch of saved posts from the export.
// Parameters:
//   - ctx: context for cancellation and deadlines (unused for local reads).
//   - cursor: pagination cursor as an index string.
//   - limit: maximum number of posts to fetch.
//
// Returns:
//   - []domain.SavedPost: batch of posts.
//   - string: next cursor or empty if no more posts.
//   - error: non-nil if loading or parsing fails.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]domain.SavedPost, string, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, "", err
	}
	return source.Page(a.posts, cursor, limit)
}

// GetTotalCount returns the number of posts in the export.
func (a *Adapter) GetTotalCount(ctx context.Context) (int, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return len(a.posts), nil
}

func (a *Adapter) ensureLoaded(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	if err := a.loadPosts(ctx); err != nil {
		return fmt.Errorf("failed to load export %s: %w", a.exportID, err)
	}
	a.loaded = true
	return nil
}

// loadPosts reads the manifest. Malformed lines and lines without an id are
// skipped; media references to missing files are cleared so the caption is
// still analyzed.
func (a *Adapter) loadPosts(ctx context.Context) error {
	exportPath := filepath.Join(a.basePath, a.exportID)
	manifestPath := filepath.Join(exportPath, ManifestFileName)
	mediaPath := filepath.Join(exportPath, MediaDir)

	file, err := os.Open(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: manifest %s", domain.ErrNotFound, manifestPath)
		}
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	a.posts = []domain.SavedPost{}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item ManifestItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			logger.CtxWarn(ctx, "Skipping malformed manifest line %d: %v", lineNo, err)
			continue
		}
		if item.ID == "" {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}

		post := domain.SavedPost{
			ContentID: item.ID,
			URL:       item.URL,
			Caption:   item.Caption,
			Hashtags:  item.Hashtags,
			VideoPath: resolveMedia(ctx, mediaPath, item.Video),
			AudioPath: resolveMedia(ctx, mediaPath, item.Audio),
		}
		if item.SavedAt != "" {
			if t, err := time.Parse(time.RFC3339, item.SavedAt); err == nil {
				post.SavedAt = t
			}
		}
		a.posts = append(a.posts, post)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}

	sort.Slice(a.posts, func(i, j int) bool {
		return a.posts[i].ContentID < a.posts[j].ContentID
	})
	return nil
}

func resolveMedia(ctx context.Context, mediaPath, name string) string {
	if name == "" {
		return ""
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(mediaPath, name)
	}
	if _, err := os.Stat(path); err != nil {
		logger.CtxWarn(ctx, "Media file %s not found, ignoring", path)
		return ""
	}
	return path
}

// ListExports lists export directories under basePath that contain a manifest.
func ListExports(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var exports []string
	for _, entry := range entries {
		if entry.IsDir() {
			manifestPath := filepath.Join(basePath, entry.Name(), ManifestFileName)
			if _, err := os.Stat(manifestPath); err == nil {
				exports = append(exports, entry.Name())
			}
		}
	}
	return exports, nil
}
