package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/metrics"
)

// VideoAnalyzer analyzes the visual track of a video.
type VideoAnalyzer interface {
	ProcessVideo(ctx context.Context, video domain.VideoFile) (*domain.VideoAnalysis, error)
}

// SpeechAnalyzer transcribes video soundtracks and standalone audio. Failures are reported
// as zero-confidence transcriptions.
type SpeechAnalyzer interface {
	ProcessVideoAudio(ctx context.Context, video domain.VideoFile) *domain.AudioTranscription
	ProcessAudio(ctx context.Context, audio domain.AudioFile) *domain.AudioTranscription
}

// TextAnalyzer analyzes captions and extracts entities from arbitrary text.
type TextAnalyzer interface {
	ProcessText(ctx context.Context, caption string, hashtags []string) *domain.TextAnalysis
	ExtractEntities(ctx context.Context, text string, source domain.EntitySource) []domain.Entity
}

// ContentInput is everything known about one content item. Any part may be absent.
type ContentInput struct {
	ContentID string
	Caption   string
	Hashtags  []string // nil means take hashtags from the caption
	Video     *domain.VideoFile
	Audio     *domain.AudioFile // ignored when Video is set
}

// MultiModalAnalyzer runs the text, video and audio analyses for a content item and merges
// them into one ContentAnalysis.
type MultiModalAnalyzer struct {
	text    TextAnalyzer
	video   VideoAnalyzer
	audio   SpeechAnalyzer
	metrics *metrics.Metrics
}

// NewMultiModalAnalyzer creates the aggregator. m may be nil.
func NewMultiModalAnalyzer(text TextAnalyzer, video VideoAnalyzer, audio SpeechAnalyzer, m *metrics.Metrics) *MultiModalAnalyzer {
	return &MultiModalAnalyzer{text: text, video: video, audio: audio, metrics: m}
}

// ProcessVideo analyzes the visual track of video.
func (a *MultiModalAnalyzer) ProcessVideo(ctx context.Context, video domain.VideoFile) (*domain.VideoAnalysis, error) {
	return a.video.ProcessVideo(ctx, video)
}

// ProcessVideoAudio transcribes the soundtrack of video.
func (a *MultiModalAnalyzer) ProcessVideoAudio(ctx context.Context, video domain.VideoFile) *domain.AudioTranscription {
	return a.audio.ProcessVideoAudio(ctx, video)
}

// ProcessAudio transcribes a standalone audio file.
func (a *MultiModalAnalyzer) ProcessAudio(ctx context.Context, audio domain.AudioFile) *domain.AudioTranscription {
	return a.audio.ProcessAudio(ctx, audio)
}

// ProcessText analyzes a caption and the hashtags it contains.
func (a *MultiModalAnalyzer) ProcessText(ctx context.Context, caption string) *domain.TextAnalysis {
	return a.text.ProcessText(ctx, caption, nil)
}

// ProcessCompleteContent analyzes every modality present in in and merges the results.
// It always returns a ContentAnalysis: a failing modality is left out, and a failure of the
// orchestration itself is reported in Error with an overall confidence of 0.
func (a *MultiModalAnalyzer) ProcessCompleteContent(ctx context.Context, in ContentInput) (result *domain.ContentAnalysis) {
	ctx = logger.SetContentID(ctx, in.ContentID)
	start := time.Now()
	logger.CtxInfo(ctx, "Starting multi-modal analysis")

	result = &domain.ContentAnalysis{
		ContentID:        in.ContentID,
		Entities:         []domain.Entity{},
		ConfidenceScores: domain.ConfidenceScores{domain.ScoreOverall: 0},
	}

	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Multi-modal analysis failed: %v", r)
			result.Error = fmt.Sprint(r)
			result.ConfidenceScores = domain.ConfidenceScores{domain.ScoreOverall: 0}
			result.ProcessedAt = time.Now()
			a.metrics.IncContent("failure")
		}
	}()

	if strings.TrimSpace(in.Caption) != "" || len(in.Hashtags) > 0 {
		result.Text = a.runText(ctx, in)
	}

	if in.Video != nil {
		result.Video = a.runVideo(ctx, *in.Video)
		result.Audio = a.runAudio(ctx, func(ctx context.Context) *domain.AudioTranscription {
			return a.audio.ProcessVideoAudio(ctx, *in.Video)
		})
	} else if in.Audio != nil {
		result.Audio = a.runAudio(ctx, func(ctx context.Context) *domain.AudioTranscription {
			return a.audio.ProcessAudio(ctx, *in.Audio)
		})
	}

	result.Entities = MergeEntities(a.collectEntities(ctx, result))
	result.ConfidenceScores = integrateScores(result)
	result.ProcessedAt = time.Now()
	a.metrics.IncContent("success")

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      len(result.Entities),
	}).WithConfidence(result.ConfidenceScores.Overall()).Info(ctx, "Multi-modal analysis completed")
	return result
}

func (a *MultiModalAnalyzer) runText(ctx context.Context, in ContentInput) *domain.TextAnalysis {
	ctx = logger.SetModality(ctx, ModalityText)
	start := time.Now()
	text := a.text.ProcessText(ctx, in.Caption, in.Hashtags)
	if text != nil {
		text.ContentID = in.ContentID
	}
	a.metrics.ObserveModality(ModalityText, time.Since(start).Seconds(), textOverall(text), text == nil)
	return text
}

func (a *MultiModalAnalyzer) runVideo(ctx context.Context, video domain.VideoFile) *domain.VideoAnalysis {
	ctx = logger.SetModality(ctx, ModalityVideo)
	start := time.Now()
	analysis, err := a.video.ProcessVideo(ctx, video)
	if err != nil {
		logger.CtxError(ctx, "Video analysis failed: %v", err)
		a.metrics.ObserveModality(ModalityVideo, time.Since(start).Seconds(), 0, true)
		return nil
	}
	analysis.ContentID = logger.GetContentID(ctx)
	a.metrics.ObserveModality(ModalityVideo, time.Since(start).Seconds(), analysis.ConfidenceScores.Overall(), false)
	return analysis
}

func (a *MultiModalAnalyzer) runAudio(ctx context.Context, run func(context.Context) *domain.AudioTranscription) *domain.AudioTranscription {
	ctx = logger.SetModality(ctx, ModalityAudio)
	start := time.Now()
	audio := run(ctx)
	if audio == nil {
		a.metrics.ObserveModality(ModalityAudio, time.Since(start).Seconds(), 0, true)
		return nil
	}
	audio.ContentID = logger.GetContentID(ctx)
	a.metrics.ObserveModality(ModalityAudio, time.Since(start).Seconds(), audio.Confidence, audio.Confidence == 0)
	return audio
}

// collectEntities gathers caption entities plus entities named in the transcript, the
// on-screen text and the detected objects.
func (a *MultiModalAnalyzer) collectEntities(ctx context.Context, result *domain.ContentAnalysis) []domain.Entity {
	var entities []domain.Entity
	if result.Text != nil {
		entities = append(entities, result.Text.Entities...)
	}
	if hasTranscript(result.Audio) {
		entities = append(entities, a.text.ExtractEntities(ctx, result.Audio.Transcript, domain.SourceAudio)...)
	}
	if result.Video != nil {
		if len(result.Video.TextOverlays) > 0 {
			entities = append(entities, a.text.ExtractEntities(ctx, strings.Join(result.Video.TextOverlays, "\n"), domain.SourceOCR)...)
		}
		if len(result.Video.DetectedObjects) > 0 {
			entities = append(entities, a.text.ExtractEntities(ctx, "Objects seen in the video: "+strings.Join(result.Video.DetectedObjects, ", "), domain.SourceVision)...)
		}
	}
	return entities
}

// integrateScores builds the per-modality, namespaced detail, consistency and overall
// scores for result.
func integrateScores(result *domain.ContentAnalysis) domain.ConfidenceScores {
	scores := domain.ConfidenceScores{}
	modalities := map[string]float64{}

	if result.Text != nil {
		textScores := TextConfidenceScores(result.Text)
		modalities[ModalityText] = textScores.Overall()
		namespacedScores(scores, ModalityText, textScores)
	}
	if result.Video != nil {
		modalities[ModalityVideo] = result.Video.ConfidenceScores.Overall()
		namespacedScores(scores, ModalityVideo, result.Video.ConfidenceScores)
	}
	// a failed transcription reports confidence 0 and is scored as absent
	audio := result.Audio
	if audio != nil && audio.Confidence == 0 {
		audio = nil
	}
	if audio != nil {
		modalities[ModalityAudio] = audio.Confidence
	}
	for m, v := range modalities {
		scores[m] = v
	}

	if result.Text != nil && result.Video != nil {
		scores[ScoreTextVideoConsistency] = TextVideoConsistency(result.Text, result.Video)
	}
	if result.Text != nil && audio != nil {
		scores[ScoreTextAudioConsistency] = TextAudioConsistency(result.Text, audio)
	}
	if result.Video != nil && audio != nil {
		scores[ScoreVideoAudioConsistency] = VideoAudioConsistency(result.Video, audio)
	}

	scores[domain.ScoreOverall] = WeightedOverall(modalities)
	return scores
}

func textOverall(text *domain.TextAnalysis) float64 {
	if text == nil {
		return 0
	}
	return TextConfidenceScores(text).Overall()
}
