package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/prompts"
)

const (
	entityConfidenceFloor = 0.6
	maxEntitiesPerText    = 10
	entityContextLen      = 100
)

var fallbackEntityPattern = regexp.MustCompile(`(?i)(product|location|brand|person|concept|event):\s*([^(]+)\s*\(([0-9.]+)\)`)

// TextProcessor extracts hashtags, topics, keywords and entities from captions.
type TextProcessor struct {
	chat ChatClient
}

// NewTextProcessor creates a text processor that extracts entities with chat.
func NewTextProcessor(chat ChatClient) *TextProcessor {
	return &TextProcessor{chat: chat}
}

// ExtractEntities asks the language model for entities in text. Backend failures and
// unparsable replies yield an empty list.
func (p *TextProcessor) ExtractEntities(ctx context.Context, text string, source domain.EntitySource) []domain.Entity {
	if strings.TrimSpace(text) == "" {
		return []domain.Entity{}
	}

	logger.CtxDebug(ctx, "Extracting entities from %s text: %s", source, truncateRunes(text, entityContextLen))

	categories := make([]string, len(domain.EntityCategories))
	for i, c := range domain.EntityCategories {
		categories[i] = string(c)
	}
	prompt := prompts.EntityUserPrompt(string(source), text, categories, entityConfidenceFloor, maxEntitiesPerText)

	reply, err := p.chat.Complete(ctx, prompts.EntitySystemPrompt, prompt)
	if err != nil {
		logger.CtxError(ctx, "Entity extraction failed for %s: %v", source, err)
		return []domain.Entity{}
	}

	entities := domain.DedupeEntities(ParseEntityResponse(strings.TrimSpace(reply), source, text))
	logger.CtxDebug(ctx, "Extracted %d entities from %s", len(entities), source)
	return entities
}

type rawEntity struct {
	Name       *string         `json:"name"`
	Category   *string         `json:"category"`
	Confidence json.RawMessage `json:"confidence"`
	Context    *string         `json:"context"`
}

// ParseEntityResponse decodes the JSON array between the first '[' and the last ']' of
// reply. Items missing name, category or confidence, with an unknown category, or with a
// confidence outside (0.6, 1.0] are dropped. When no array is present or it does not
// decode, lines of the form "Category: Name (0.9)" are matched instead.
func ParseEntityResponse(reply string, source domain.EntitySource, originalText string) []domain.Entity {
	defaultContext := truncateRunes(originalText, entityContextLen)

	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return fallbackEntities(reply, source, defaultContext)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &items); err != nil {
		logger.Warn("Failed to parse entity response as JSON: %v", err)
		return fallbackEntities(reply, source, defaultContext)
	}

	entities := make([]domain.Entity, 0, len(items))
	for _, raw := range items {
		var item rawEntity
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		if item.Name == nil || item.Category == nil || len(item.Confidence) == 0 {
			continue
		}
		category, ok := domain.ParseEntityCategory(*item.Category)
		if !ok {
			continue
		}
		confidence, ok := parseConfidence(item.Confidence)
		if !ok || confidence <= entityConfidenceFloor || confidence > 1.0 {
			continue
		}
		name := strings.TrimSpace(*item.Name)
		if name == "" {
			continue
		}

		entityContext := defaultContext
		if item.Context != nil && *item.Context != "" {
			entityContext = *item.Context
		}
		entities = append(entities, domain.Entity{
			Name:       name,
			Category:   category,
			Confidence: confidence,
			Source:     source,
			Context:    entityContext,
		})
	}
	return entities
}

// parseConfidence accepts a JSON number or a numeric string.
func parseConfidence(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func fallbackEntities(reply string, source domain.EntitySource, entityContext string) []domain.Entity {
	entities := []domain.Entity{}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := fallbackEntityPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		confidence, err := strconv.ParseFloat(m[3], 64)
		if err != nil || confidence < entityConfidenceFloor || confidence > 1.0 {
			continue
		}
		category, ok := domain.ParseEntityCategory(m[1])
		if !ok {
			continue
		}
		entities = append(entities, domain.Entity{
			Name:       strings.TrimSpace(m[2]),
			Category:   category,
			Confidence: confidence,
			Source:     source,
			Context:    entityContext,
		})
	}
	return entities
}

// AnalyzeCaption extracts hashtags, topics, keywords and entities from a caption.
// Entities come from the caption text with hashtags removed plus each hashtag on its own.
func (p *TextProcessor) AnalyzeCaption(ctx context.Context, caption string) *domain.TextAnalysis {
	if strings.TrimSpace(caption) == "" {
		return emptyTextAnalysis()
	}
	logger.CtxInfo(ctx, "Analyzing caption: %s", truncateRunes(caption, entityContextLen))

	hashtags := ExtractHashtags(caption)
	categories := CategorizeHashtags(hashtags)
	captionText := StripHashtags(caption)

	entities := p.ExtractEntities(ctx, captionText, domain.SourceCaption)
	entities = append(entities, p.hashtagEntities(ctx, hashtags)...)
	entities = domain.DedupeEntities(entities)

	result := &domain.TextAnalysis{
		Entities: entities,
		Topics:   CategoryTopics(categories),
		Keywords: ExtractKeywords(captionText),
	}
	logger.CtxInfo(ctx, "Caption analysis completed: %d entities, %d topics, %d keywords",
		len(result.Entities), len(result.Topics), len(result.Keywords))
	return result
}

// AnalyzeHashtags categorizes hashtags and extracts entities from each one.
func (p *TextProcessor) AnalyzeHashtags(ctx context.Context, hashtags []string) *domain.HashtagAnalysis {
	if len(hashtags) == 0 {
		return &domain.HashtagAnalysis{
			Categories: map[string][]string{},
			Topics:     []string{},
			Entities:   []domain.Entity{},
		}
	}
	logger.CtxInfo(ctx, "Analyzing %d hashtags", len(hashtags))

	categories := CategorizeHashtags(hashtags)
	result := &domain.HashtagAnalysis{
		Categories: categories,
		Topics:     CategoryTopics(categories),
		Entities:   domain.DedupeEntities(p.hashtagEntities(ctx, hashtags)),
	}
	logger.CtxInfo(ctx, "Hashtag analysis completed: %d categories, %d entities",
		len(result.Categories), len(result.Entities))
	return result
}

func (p *TextProcessor) hashtagEntities(ctx context.Context, hashtags []string) []domain.Entity {
	var entities []domain.Entity
	for _, tag := range hashtags {
		tag = strings.TrimPrefix(tag, "#")
		entities = append(entities, p.ExtractEntities(ctx, "#"+tag, domain.SourceHashtag)...)
	}
	return entities
}

// ProcessText analyzes a caption together with a hashtag list. A nil hashtags slice means
// the hashtags are taken from the caption. Hashtags already analyzed as part of the caption
// are not sent to the model a second time.
func (p *TextProcessor) ProcessText(ctx context.Context, caption string, hashtags []string) *domain.TextAnalysis {
	start := time.Now()
	if hashtags == nil {
		hashtags = ExtractHashtags(caption)
	}

	captionResult := p.AnalyzeCaption(ctx, caption)

	inCaption := make(map[string]struct{})
	for _, tag := range ExtractHashtags(caption) {
		inCaption[tag] = struct{}{}
	}
	var all, extra []string
	for _, tag := range hashtags {
		tag = strings.ToLower(strings.TrimPrefix(tag, "#"))
		if tag == "" {
			continue
		}
		all = append(all, tag)
		if _, ok := inCaption[tag]; !ok {
			extra = append(extra, tag)
		}
	}
	extra = uniqueStrings(extra)

	hashtagResult := p.AnalyzeHashtags(ctx, extra)
	// Hashtags found in the caption still count toward topics.
	topics := uniqueStrings(append(captionResult.Topics, CategoryTopics(CategorizeHashtags(all))...))
	topics = uniqueStrings(append(topics, hashtagResult.Topics...))

	result := &domain.TextAnalysis{
		Entities:  domain.DedupeEntities(append(captionResult.Entities, hashtagResult.Entities...)),
		Sentiment: captionResult.Sentiment,
		Topics:    topics,
		Keywords:  captionResult.Keywords,
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      len(result.Entities),
	}).Info(ctx, "Text processing completed: %d entities, %d topics", len(result.Entities), len(result.Topics))
	return result
}

func emptyTextAnalysis() *domain.TextAnalysis {
	return &domain.TextAnalysis{
		Entities: []domain.Entity{},
		Topics:   []string{},
		Keywords: []string{},
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
