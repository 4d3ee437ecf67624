package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
)

// Video confidence components.
const (
	ScoreFrameExtraction = "frame_extraction"
	ScoreAnalysisSuccess = "analysis_success_rate"
	ScoreObjectDetection = "object_detection"
	ScoreTextRecognition = "text_recognition"
	ScoreSceneAnalysis   = "scene_analysis"
)

const (
	frameScorePrefix       = "frame_"
	noFramesDescription    = "No frames could be extracted"
	minSceneDescriptionLen = 20
	thinSceneConfidence    = 0.3
	noObjectsPenalty       = 0.5
	noTextPenalty          = 0.8
)

var videoScoreWeights = []struct {
	component string
	weight    float64
}{
	{ScoreFrameExtraction, 0.1},
	{ScoreAnalysisSuccess, 0.2},
	{ScoreObjectDetection, 0.3},
	{ScoreTextRecognition, 0.2},
	{ScoreSceneAnalysis, 0.2},
}

// FrameSource produces sampled frames backed by temp files.
type FrameSource interface {
	Sample(ctx context.Context, video domain.VideoFile, maxFrames int) ([]domain.ImageFrame, error)
}

// FrameAnalyzer analyzes a single frame. It reports failures inside the result.
type FrameAnalyzer interface {
	AnalyzeFrame(ctx context.Context, frame domain.ImageFrame) *domain.FrameAnalysis
}

// VideoProcessor samples frames from a video and aggregates their visual analyses.
type VideoProcessor struct {
	frames    FrameSource
	analyzer  FrameAnalyzer
	maxFrames int
}

// NewVideoProcessor creates a video processor. maxFrames <= 0 defers to the frame source's default.
func NewVideoProcessor(frames FrameSource, analyzer FrameAnalyzer, maxFrames int) *VideoProcessor {
	return &VideoProcessor{frames: frames, analyzer: analyzer, maxFrames: maxFrames}
}

// ProcessVideo samples and analyzes frames of video.
// Missing or unreadable videos return domain.ErrNotFound / domain.ErrCorrupt. A video that
// opens but yields no frames returns a zero-confidence analysis instead of an error.
func (p *VideoProcessor) ProcessVideo(ctx context.Context, video domain.VideoFile) (*domain.VideoAnalysis, error) {
	start := time.Now()
	logger.CtxInfo(ctx, "Starting video processing for %s", video.Path)

	frames, err := p.frames.Sample(ctx, video, p.maxFrames)
	if err != nil {
		return nil, fmt.Errorf("failed to sample frames: %w", err)
	}

	if len(frames) == 0 {
		logger.CtxWarn(ctx, "No frames extracted from %s", video.Path)
		return emptyVideoAnalysis(), nil
	}

	analyses := make([]*domain.FrameAnalysis, 0, len(frames))
	for i, frame := range frames {
		analyses = append(analyses, p.analyzeAndRemove(ctx, i, frame))
	}

	var objects, overlays []string
	descriptions := make([]string, 0, len(analyses))
	for _, a := range analyses {
		objects = append(objects, a.Objects...)
		overlays = append(overlays, a.TextOverlays...)
		descriptions = append(descriptions, a.Description)
	}

	result := &domain.VideoAnalysis{
		FrameCount:        len(frames),
		DetectedObjects:   uniqueStrings(objects),
		TextOverlays:      uniqueStrings(overlays),
		SceneDescriptions: descriptions,
		ConfidenceScores:  VideoConfidenceScores(analyses),
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      len(frames),
	}).WithConfidence(result.ConfidenceScores.Overall()).Info(ctx,
		"Video processing completed. Found %d objects, %d text overlays",
		len(result.DetectedObjects), len(result.TextOverlays))

	return result, nil
}

// analyzeAndRemove analyzes one frame and always deletes its temp file.
// A panicking analyzer is recorded as a failed frame.
func (p *VideoProcessor) analyzeAndRemove(ctx context.Context, i int, frame domain.ImageFrame) (result *domain.FrameAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Failed to analyze frame %d: %v", i, r)
			result = failedFrame(frame, fmt.Errorf("%v", r))
		}
		if err := os.Remove(frame.Path); err != nil && !os.IsNotExist(err) {
			logger.CtxWarn(ctx, "Failed to delete frame file %s: %v", frame.Path, err)
		}
	}()

	result = p.analyzer.AnalyzeFrame(ctx, frame)
	if result == nil {
		result = failedFrame(frame, fmt.Errorf("no analysis returned"))
	}
	if result.Failed {
		logger.CtxError(ctx, "Failed to analyze frame %d: %s", i, result.Description)
	}
	return result
}

func emptyVideoAnalysis() *domain.VideoAnalysis {
	return &domain.VideoAnalysis{
		FrameCount:        0,
		DetectedObjects:   []string{},
		TextOverlays:      []string{},
		SceneDescriptions: []string{noFramesDescription},
		ConfidenceScores: domain.ConfidenceScores{
			domain.ScoreOverall:  0,
			ScoreFrameExtraction: 0,
			ScoreAnalysisSuccess: 0,
			ScoreObjectDetection: 0,
			ScoreTextRecognition: 0,
			ScoreSceneAnalysis:   0,
		},
	}
}

// VideoConfidenceScores computes component scores, per-frame scores and the weighted
// overall for a batch of frame analyses. Failed frames count toward every mean with
// confidence 0.
func VideoConfidenceScores(analyses []*domain.FrameAnalysis) domain.ConfidenceScores {
	scores := domain.ConfidenceScores{}
	n := len(analyses)
	if n == 0 {
		return emptyVideoAnalysis().ConfidenceScores
	}

	var succeeded int
	var objectSum, textSum, sceneSum float64
	for i, a := range analyses {
		if !a.Failed {
			succeeded++
		}

		if len(a.Objects) > 0 {
			objectSum += a.Confidence
		} else {
			objectSum += a.Confidence * noObjectsPenalty
		}

		if len(a.TextOverlays) > 0 {
			textSum += a.Confidence
		} else {
			textSum += a.Confidence * noTextPenalty
		}

		if utf8.RuneCountInString(strings.TrimSpace(a.Description)) > minSceneDescriptionLen {
			sceneSum += a.Confidence
		} else {
			sceneSum += thinSceneConfidence
		}

		scores[fmt.Sprintf("%s%d", frameScorePrefix, i)] = a.Confidence
	}

	scores[ScoreFrameExtraction] = 1.0
	scores[ScoreAnalysisSuccess] = float64(succeeded) / float64(n)
	scores[ScoreObjectDetection] = objectSum / float64(n)
	scores[ScoreTextRecognition] = textSum / float64(n)
	scores[ScoreSceneAnalysis] = sceneSum / float64(n)

	var overall float64
	for _, w := range videoScoreWeights {
		overall += scores[w.component] * w.weight
	}
	scores[domain.ScoreOverall] = clamp01(overall)

	return scores
}

// isFrameScore reports whether key is a per-frame entry such as "frame_3".
func isFrameScore(key string) bool {
	rest, ok := strings.CutPrefix(key, frameScorePrefix)
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
