package service

import (
	"strings"

	"github.com/timmy/reelsense/internal/domain"
)

const maxEntityContextRunes = 120

func normalizeWhitespace(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func compactContext(text string) string {
	cleaned := normalizeWhitespace(strings.TrimSpace(text))
	if cleaned == "" {
		return ""
	}
	return truncateRunes(cleaned, maxEntityContextRunes)
}

// EntityEmbeddingText builds the passage embedded for an entity in the index:
// name, category and a compacted context, one per line.
func EntityEmbeddingText(e domain.Entity) string {
	segments := make([]string, 0, 3)
	if name := normalizeWhitespace(e.Name); name != "" {
		segments = append(segments, "name:"+name)
	}
	if e.Category != "" {
		segments = append(segments, "category:"+strings.ToLower(string(e.Category)))
	}
	if ctx := compactContext(e.Context); ctx != "" {
		segments = append(segments, "context:"+ctx)
	}
	return strings.Join(segments, "\n")
}
