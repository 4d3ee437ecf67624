package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/prompts"
)

const (
	maxFrameObjects  = 10
	maxFrameOverlays = 5

	frameBaseConfidence = 0.6
	frameMinConfidence  = 0.1
)

var certaintyWords = []string{"clear", "visible", "obvious", "definitely", "certainly"}

// VisualAnalyzer turns one sampled frame into a FrameAnalysis using a vision model.
type VisualAnalyzer struct {
	vision VisionClient
	prompt string
}

// NewVisualAnalyzer creates an analyzer that sends frames to vision.
func NewVisualAnalyzer(vision VisionClient) *VisualAnalyzer {
	return &VisualAnalyzer{vision: vision, prompt: prompts.VisionFramePrompt}
}

// AnalyzeFrame submits the frame to the vision model and parses the reply.
// Failures never surface as errors: the result is marked Failed with confidence 0
// and a description carrying the reason.
func (a *VisualAnalyzer) AnalyzeFrame(ctx context.Context, frame domain.ImageFrame) *domain.FrameAnalysis {
	data, format, err := readImageFile(frame.Path)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to read frame %s: %v", frame.Path, err)
		return failedFrame(frame, err)
	}

	reply, err := a.vision.AnalyzeImage(ctx, data, format, a.prompt)
	if err != nil {
		logger.CtxWarn(ctx, "Vision analysis failed for frame at %.2fs: %v", frame.TimestampOrZero(), err)
		return failedFrame(frame, err)
	}

	result := ParseVisionResponse(reply)
	result.Timestamp = frame.Timestamp
	logger.CtxDebug(ctx, "Frame at %.2fs: %d objects, %d overlays, confidence=%.2f",
		frame.TimestampOrZero(), len(result.Objects), len(result.TextOverlays), result.Confidence)
	return result
}

func failedFrame(frame domain.ImageFrame, err error) *domain.FrameAnalysis {
	return &domain.FrameAnalysis{
		Objects:      []string{},
		TextOverlays: []string{},
		Description:  fmt.Sprintf("Analysis failed: %v", err),
		Confidence:   0,
		Timestamp:    frame.Timestamp,
		Failed:       true,
	}
}

// ParseVisionResponse extracts objects, text overlays and a confidence from a free-text
// vision reply. The whole reply becomes the scene description.
//
// Lines mentioning "object" or "item" contribute their alphabetic words longer than three
// letters as objects. Lines mentioning "text", "overlay" or "caption" contribute whatever
// follows the first colon as an overlay.
func ParseVisionResponse(response string) *domain.FrameAnalysis {
	var (
		objects    []string
		overlays   []string
		certain    int
		totalLines int
	)

	for _, line := range strings.Split(strings.ToLower(response), "\n") {
		if strings.TrimSpace(line) != "" {
			totalLines++
		}

		if strings.Contains(line, "object") || strings.Contains(line, "item") {
			for _, word := range strings.Fields(line) {
				if utf8.RuneCountInString(word) > 3 && isAlpha(word) {
					objects = append(objects, capitalize(word))
				}
			}
		}

		if strings.Contains(line, "text") || strings.Contains(line, "overlay") || strings.Contains(line, "caption") {
			if _, after, ok := strings.Cut(line, ":"); ok {
				if text := strings.TrimSpace(after); text != "" {
					overlays = append(overlays, text)
				}
			}
		}

		for _, w := range certaintyWords {
			if strings.Contains(line, w) {
				certain++
				break
			}
		}
	}

	objects = uniqueStrings(objects)
	overlays = uniqueStrings(overlays)

	var contentBonus float64
	if found := len(objects) + len(overlays); found > 0 {
		contentBonus = min(0.2, float64(found)*0.05)
	} else {
		contentBonus = -0.2
	}

	var certaintyBonus float64
	if totalLines > 0 {
		certaintyBonus = float64(certain) / float64(totalLines) * 0.2
	}

	lengthBonus := min(0.1, float64(utf8.RuneCountInString(response))/1000*0.1)

	confidence := clamp(frameBaseConfidence+contentBonus+certaintyBonus+lengthBonus, frameMinConfidence, 1.0)

	return &domain.FrameAnalysis{
		Objects:      truncate(objects, maxFrameObjects),
		TextOverlays: truncate(overlays, maxFrameOverlays),
		Description:  response,
		Confidence:   confidence,
	}
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// uniqueStrings removes duplicates keeping first-seen order. It never returns nil.
func uniqueStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func truncate(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
