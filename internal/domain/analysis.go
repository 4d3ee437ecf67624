package domain

import "time"

// ConfidenceScores maps a component name to a confidence in [0,1].
type ConfidenceScores map[string]float64

// Overall returns the "overall" score, 0 when absent.
func (s ConfidenceScores) Overall() float64 {
	return s[ScoreOverall]
}

// ScoreOverall is the key every scores map carries.
const ScoreOverall = "overall"

// FrameAnalysis is the parsed vision result for a single frame.
// Failed is set when the vision backend call failed; Description then carries the reason.
type FrameAnalysis struct {
	Objects      []string `json:"objects"`
	TextOverlays []string `json:"text_overlays"`
	Description  string   `json:"scene_description"`
	Confidence   float64  `json:"confidence"`
	Timestamp    *float64 `json:"timestamp,omitempty"`
	Failed       bool     `json:"failed,omitempty"`
}

// VideoAnalysis aggregates per-frame results for one video.
type VideoAnalysis struct {
	ContentID         string           `json:"content_id"`
	FrameCount        int              `json:"frame_count"`
	DetectedObjects   []string         `json:"detected_objects"`
	TextOverlays      []string         `json:"text_overlays"`
	SceneDescriptions []string         `json:"scene_descriptions"`
	ConfidenceScores  ConfidenceScores `json:"confidence_scores"`
}

// HasContent reports whether any object or overlay was detected.
func (v *VideoAnalysis) HasContent() bool {
	return v != nil && (len(v.DetectedObjects) > 0 || len(v.TextOverlays) > 0)
}

// TranscriptSegment is one timed span of a transcript.
// Confidence holds the backend's average log-probability for the span.
type TranscriptSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// AudioTranscription is the speech-to-text result for one audio track.
// A Confidence of 0 signals failure and Transcript then holds the failure message.
type AudioTranscription struct {
	ContentID  string              `json:"content_id"`
	Transcript string              `json:"transcript"`
	Segments   []TranscriptSegment `json:"segments"`
	Language   *string             `json:"language,omitempty"`
	Confidence float64             `json:"confidence"`
}

// TextAnalysis is the result of caption and hashtag analysis.
type TextAnalysis struct {
	ContentID string   `json:"content_id"`
	Entities  []Entity `json:"extracted_entities"`
	Sentiment *string  `json:"sentiment,omitempty"`
	Topics    []string `json:"topics"`
	Keywords  []string `json:"keywords"`
}

// HashtagAnalysis is the result of analyzing a hashtag list on its own.
type HashtagAnalysis struct {
	Categories map[string][]string `json:"categories"`
	Topics     []string            `json:"topics"`
	Entities   []Entity            `json:"entities"`
}

// VisionAnalysis is a whole-image vision record. The analysis pipeline does not populate it.
type VisionAnalysis struct {
	ContentID        string           `json:"content_id"`
	DetectedObjects  []string         `json:"detected_objects"`
	TextRegions      []string         `json:"text_regions"`
	SceneDescription string           `json:"scene_description"`
	FacesDetected    int              `json:"faces_detected"`
	ConfidenceScores ConfidenceScores `json:"confidence_scores"`
}

// ContentAnalysis is the merged result for one content item.
// It is built once by the multi-modal analyzer and not mutated afterwards.
type ContentAnalysis struct {
	ContentID        string              `json:"content_id"`
	Text             *TextAnalysis       `json:"text_analysis,omitempty"`
	Vision           *VisionAnalysis     `json:"vision_analysis,omitempty"`
	Audio            *AudioTranscription `json:"audio_analysis,omitempty"`
	Video            *VideoAnalysis      `json:"video_analysis,omitempty"`
	Entities         []Entity            `json:"extracted_entities"`
	ConfidenceScores ConfidenceScores    `json:"confidence_scores"`
	Error            string              `json:"error,omitempty"`
	ProcessedAt      time.Time           `json:"processing_timestamp"`
}
