package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	mediaPrefix    = "media"
	analysisPrefix = "analysis"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// MediaKey builds the object key for a media file of a content item:
// media/<content id>/<kind><ext>, e.g. media/post-1/video.mp4.
func MediaKey(contentID, kind, localPath string) string {
	return fmt.Sprintf("%s/%s/%s%s", mediaPrefix, safeID(contentID), kind, strings.ToLower(filepath.Ext(localPath)))
}

// AnalysisKey builds the object key of the archived analysis JSON.
func AnalysisKey(contentID string) string {
	return fmt.Sprintf("%s/%s.json", analysisPrefix, safeID(contentID))
}

func safeID(contentID string) string {
	id := strings.Trim(unsafeKeyChars.ReplaceAllString(contentID, "_"), "_")
	if id == "" {
		return "unknown"
	}
	return id
}

// ContentType guesses a MIME type from the file extension.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// UploadFile streams a local file to key.
func UploadFile(ctx context.Context, store ObjectStorage, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	return store.Upload(ctx, key, f, info.Size(), ContentType(localPath))
}
