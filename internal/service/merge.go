package service

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/timmy/reelsense/internal/domain"
)

// Modality names used as score keys and metric labels.
const (
	ModalityText  = "text"
	ModalityVideo = "video"
	ModalityAudio = "audio"
)

// Cross-modal consistency score keys.
const (
	ScoreTextVideoConsistency  = "text_video_consistency"
	ScoreTextAudioConsistency  = "text_audio_consistency"
	ScoreVideoAudioConsistency = "video_audio_consistency"
)

// Text sub-score keys, namespaced as text_<key> in the merged map.
const (
	ScoreEntities = "entities"
	ScoreKeywords = "keywords"
	ScoreTopics   = "topics"
)

const (
	neutralConsistency     = 0.5
	thinAudioConsistency   = 0.3
	bothContentConsistency = 0.8
	oneContentConsistency  = 0.6
	noContentConsistency   = 0.4

	maxMergeBoost     = 1.2
	mergeBoostPerDup  = 0.1
	maxMergedContexts = 3
	keywordSaturation = 5
)

var modalityWeights = []struct {
	modality string
	weight   float64
}{
	{ModalityText, 0.4},
	{ModalityVideo, 0.35},
	{ModalityAudio, 0.25},
}

// MergeEntities collapses entities sharing (lowercased trimmed name, category).
// A group of N > 1 takes its name and source from its most confident member, an averaged
// confidence boosted by min(1.2, 1 + 0.1*(N-1)) and clamped to [0,1], and up to three
// non-empty contexts joined with "; ". The result is sorted by confidence, highest first.
func MergeEntities(entities []domain.Entity) []domain.Entity {
	groups := make(map[domain.EntityKey][]domain.Entity)
	var order []domain.EntityKey
	for _, e := range entities {
		k := e.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	merged := make([]domain.Entity, 0, len(order))
	for _, k := range order {
		group := groups[k]
		if len(group) == 1 {
			merged = append(merged, group[0])
			continue
		}

		best := group[0]
		var sum float64
		var contexts []string
		for _, e := range group {
			sum += e.Confidence
			if e.Confidence > best.Confidence {
				best = e
			}
			if e.Context != "" && len(contexts) < maxMergedContexts {
				contexts = append(contexts, e.Context)
			}
		}

		boost := min(maxMergeBoost, 1.0+mergeBoostPerDup*float64(len(group)-1))
		merged = append(merged, domain.Entity{
			Name:       strings.TrimSpace(best.Name),
			Category:   best.Category,
			Confidence: clamp01(sum / float64(len(group)) * boost),
			Source:     best.Source,
			Context:    strings.Join(contexts, "; "),
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

// TextConfidenceScores rates a text analysis: mean entity confidence, keyword richness
// saturating at five keywords, and whether any topic was found. Overall weighs them
// 0.5 / 0.3 / 0.2.
func TextConfidenceScores(text *domain.TextAnalysis) domain.ConfidenceScores {
	var entities float64
	if len(text.Entities) > 0 {
		for _, e := range text.Entities {
			entities += e.Confidence
		}
		entities /= float64(len(text.Entities))
	}
	keywords := min(1.0, float64(len(text.Keywords))/keywordSaturation)
	var topics float64
	if len(text.Topics) > 0 {
		topics = 1.0
	}

	return domain.ConfidenceScores{
		ScoreEntities:       clamp01(entities),
		ScoreKeywords:       keywords,
		ScoreTopics:         topics,
		domain.ScoreOverall: clamp01(0.5*entities + 0.3*keywords + 0.2*topics),
	}
}

// WeightedOverall blends per-modality overall confidences with the fixed text/video/audio
// weights, renormalized over the modalities present. No modality yields 0.
func WeightedOverall(modalities map[string]float64) float64 {
	var total, weightSum float64
	for _, w := range modalityWeights {
		score, ok := modalities[w.modality]
		if !ok {
			continue
		}
		total += clamp01(score) * w.weight
		weightSum += w.weight
	}
	if weightSum == 0 {
		return 0
	}
	return clamp01(total / weightSum)
}

// TextVideoConsistency is the Jaccard similarity of lowercased entity names and detected
// objects, or 0.5 when either side is empty.
func TextVideoConsistency(text *domain.TextAnalysis, video *domain.VideoAnalysis) float64 {
	names := make(map[string]struct{})
	for _, e := range text.Entities {
		if n := strings.ToLower(strings.TrimSpace(e.Name)); n != "" {
			names[n] = struct{}{}
		}
	}
	objects := make(map[string]struct{})
	for _, o := range video.DetectedObjects {
		if n := strings.ToLower(strings.TrimSpace(o)); n != "" {
			objects[n] = struct{}{}
		}
	}
	if len(names) == 0 || len(objects) == 0 {
		return neutralConsistency
	}

	var inter int
	for n := range names {
		if _, ok := objects[n]; ok {
			inter++
		}
	}
	union := len(names) + len(objects) - inter
	return float64(inter) / float64(union)
}

var transcriptWordSplit = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// TextAudioConsistency is the share of text keywords spoken in the transcript. Thin or
// failed transcripts score 0.3; missing keywords or words score 0.5.
func TextAudioConsistency(text *domain.TextAnalysis, audio *domain.AudioTranscription) float64 {
	if !hasTranscript(audio) {
		return thinAudioConsistency
	}

	words := make(map[string]struct{})
	for _, w := range transcriptWordSplit.Split(strings.ToLower(audio.Transcript), -1) {
		if w != "" {
			words[w] = struct{}{}
		}
	}
	if len(text.Keywords) == 0 || len(words) == 0 {
		return neutralConsistency
	}

	var hits int
	for _, kw := range text.Keywords {
		if _, ok := words[strings.ToLower(kw)]; ok {
			hits++
		}
	}
	return min(1.0, float64(hits)/float64(len(text.Keywords)))
}

// VideoAudioConsistency scores 0.8 when both the video and the transcript have content,
// 0.6 when one does and 0.4 when neither does.
func VideoAudioConsistency(video *domain.VideoAnalysis, audio *domain.AudioTranscription) float64 {
	switch v, a := video.HasContent(), hasTranscript(audio); {
	case v && a:
		return bothContentConsistency
	case v || a:
		return oneContentConsistency
	default:
		return noContentConsistency
	}
}

// hasTranscript reports whether audio carries a real transcript longer than ten characters.
// Failure placeholders do not count.
func hasTranscript(audio *domain.AudioTranscription) bool {
	return audio != nil && audio.Confidence > 0 && utf8.RuneCountInString(strings.TrimSpace(audio.Transcript)) > minTranscriptLen
}

// namespacedScores copies scores into out as <prefix>_<key>, skipping "overall" and
// per-frame keys.
func namespacedScores(out domain.ConfidenceScores, prefix string, scores domain.ConfidenceScores) {
	for k, v := range scores {
		if k == domain.ScoreOverall || isFrameScore(k) {
			continue
		}
		out[prefix+"_"+k] = v
	}
}
