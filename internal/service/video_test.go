package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/timmy/reelsense/internal/domain"
)

type fakeFrameSource struct {
	dir   string
	count int
	err   error
	paths []string
}

func (f *fakeFrameSource) Sample(ctx context.Context, video domain.VideoFile, maxFrames int) ([]domain.ImageFrame, error) {
	if f.err != nil {
		return nil, f.err
	}
	frames := make([]domain.ImageFrame, 0, f.count)
	for i := 0; i < f.count; i++ {
		path := filepath.Join(f.dir, fmt.Sprintf("frame-%d.jpg", i))
		if err := os.WriteFile(path, []byte("jpeg"), 0644); err != nil {
			return nil, err
		}
		ts := float64(i)
		f.paths = append(f.paths, path)
		frames = append(frames, domain.ImageFrame{Path: path, Timestamp: &ts})
	}
	return frames, nil
}

type scriptedAnalyzer struct {
	results []*domain.FrameAnalysis
	panicAt int
	calls   int
}

func (s *scriptedAnalyzer) AnalyzeFrame(ctx context.Context, frame domain.ImageFrame) *domain.FrameAnalysis {
	i := s.calls
	s.calls++
	if s.panicAt >= 0 && i == s.panicAt {
		panic("decoder exploded")
	}
	return s.results[i]
}

const longDescription = "A wood-fired pizza on a rustic table"

func TestVideoProcessor_ProcessVideo(t *testing.T) {
	t.Run("aggregates frames and cleans up", func(t *testing.T) {
		src := &fakeFrameSource{dir: t.TempDir(), count: 2}
		analyzer := &scriptedAnalyzer{panicAt: -1, results: []*domain.FrameAnalysis{
			{Objects: []string{"Pizza", "Table"}, TextOverlays: []string{}, Description: longDescription, Confidence: 0.8},
			{Objects: []string{"Pizza"}, TextOverlays: []string{"menu"}, Description: "short", Confidence: 0.6},
		}}

		got, err := NewVideoProcessor(src, analyzer, 10).ProcessVideo(context.Background(), domain.VideoFile{Path: "clip.mp4"})
		if err != nil {
			t.Fatalf("ProcessVideo() error = %v", err)
		}

		if got.FrameCount != 2 {
			t.Errorf("FrameCount = %d, want 2", got.FrameCount)
		}
		if !reflect.DeepEqual(got.DetectedObjects, []string{"Pizza", "Table"}) {
			t.Errorf("DetectedObjects = %v", got.DetectedObjects)
		}
		if !reflect.DeepEqual(got.TextOverlays, []string{"menu"}) {
			t.Errorf("TextOverlays = %v", got.TextOverlays)
		}
		if !reflect.DeepEqual(got.SceneDescriptions, []string{longDescription, "short"}) {
			t.Errorf("SceneDescriptions = %v", got.SceneDescriptions)
		}
		for _, p := range src.paths {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("frame file %s was not deleted", p)
			}
		}
		if _, ok := got.ConfidenceScores["frame_1"]; !ok {
			t.Error("missing per-frame score frame_1")
		}
	})

	t.Run("failed frame does not abort the batch", func(t *testing.T) {
		src := &fakeFrameSource{dir: t.TempDir(), count: 3}
		analyzer := &scriptedAnalyzer{panicAt: 1, results: []*domain.FrameAnalysis{
			{Objects: []string{"Cup"}, TextOverlays: []string{}, Description: longDescription, Confidence: 0.7},
			nil,
			{Objects: []string{"Desk"}, TextOverlays: []string{}, Description: longDescription, Confidence: 0.7},
		}}

		got, err := NewVideoProcessor(src, analyzer, 10).ProcessVideo(context.Background(), domain.VideoFile{Path: "clip.mp4"})
		if err != nil {
			t.Fatalf("ProcessVideo() error = %v", err)
		}
		if analyzer.calls != 3 {
			t.Errorf("analyzer calls = %d, want 3", analyzer.calls)
		}
		if got.ConfidenceScores["frame_1"] != 0 {
			t.Errorf("frame_1 = %v, want 0", got.ConfidenceScores["frame_1"])
		}
		if !approxEqual(got.ConfidenceScores[ScoreAnalysisSuccess], 2.0/3.0) {
			t.Errorf("analysis_success_rate = %v, want 2/3", got.ConfidenceScores[ScoreAnalysisSuccess])
		}
		for _, p := range src.paths {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("frame file %s was not deleted", p)
			}
		}
	})

	t.Run("zero frames", func(t *testing.T) {
		src := &fakeFrameSource{dir: t.TempDir(), count: 0}
		got, err := NewVideoProcessor(src, &scriptedAnalyzer{panicAt: -1}, 10).ProcessVideo(context.Background(), domain.VideoFile{Path: "clip.mp4"})
		if err != nil {
			t.Fatalf("ProcessVideo() error = %v", err)
		}
		if got.FrameCount != 0 {
			t.Errorf("FrameCount = %d, want 0", got.FrameCount)
		}
		if got.ConfidenceScores.Overall() != 0 {
			t.Errorf("overall = %v, want 0", got.ConfidenceScores.Overall())
		}
		if !reflect.DeepEqual(got.SceneDescriptions, []string{"No frames could be extracted"}) {
			t.Errorf("SceneDescriptions = %v", got.SceneDescriptions)
		}
		for _, k := range []string{ScoreFrameExtraction, ScoreObjectDetection, ScoreTextRecognition, ScoreSceneAnalysis} {
			if v, ok := got.ConfidenceScores[k]; !ok || v != 0 {
				t.Errorf("%s = %v (present %v), want 0", k, v, ok)
			}
		}
	})

	t.Run("sampling errors propagate", func(t *testing.T) {
		for _, sentinel := range []error{domain.ErrNotFound, domain.ErrCorrupt} {
			src := &fakeFrameSource{err: fmt.Errorf("%w: clip.mp4", sentinel)}
			_, err := NewVideoProcessor(src, &scriptedAnalyzer{panicAt: -1}, 10).ProcessVideo(context.Background(), domain.VideoFile{Path: "clip.mp4"})
			if !errors.Is(err, sentinel) {
				t.Errorf("error = %v, want %v", err, sentinel)
			}
		}
	})
}

func TestVideoConfidenceScores(t *testing.T) {
	analyses := []*domain.FrameAnalysis{
		{Objects: []string{"Pizza"}, TextOverlays: []string{}, Description: longDescription, Confidence: 0.8},
		{Objects: []string{}, TextOverlays: []string{}, Description: "Analysis failed: boom", Confidence: 0, Failed: true},
	}
	got := VideoConfidenceScores(analyses)

	want := map[string]float64{
		ScoreFrameExtraction: 1.0,
		ScoreAnalysisSuccess: 0.5,
		ScoreObjectDetection: 0.4,  // (0.8 + 0*0.5) / 2
		ScoreTextRecognition: 0.32, // (0.8*0.8 + 0) / 2
		ScoreSceneAnalysis:   0.4,  // (0.8 + 0) / 2
		"frame_0":            0.8,
		"frame_1":            0,
		domain.ScoreOverall:  0.1*1 + 0.2*0.5 + 0.3*0.4 + 0.2*0.32 + 0.2*0.4,
	}
	for k, v := range want {
		if !approxEqual(got[k], v) {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}

	t.Run("thin descriptions score flat", func(t *testing.T) {
		got := VideoConfidenceScores([]*domain.FrameAnalysis{
			{Objects: []string{"A"}, TextOverlays: []string{"b"}, Description: "tiny", Confidence: 0.9},
		})
		if !approxEqual(got[ScoreSceneAnalysis], 0.3) {
			t.Errorf("scene_analysis = %v, want 0.3", got[ScoreSceneAnalysis])
		}
	})

	t.Run("description length counts characters", func(t *testing.T) {
		got := VideoConfidenceScores([]*domain.FrameAnalysis{
			{Objects: []string{"A"}, TextOverlays: []string{"b"}, Description: "テーブルの上のピザと飲み物", Confidence: 0.9},
		})
		if !approxEqual(got[ScoreSceneAnalysis], 0.3) {
			t.Errorf("scene_analysis = %v, want 0.3", got[ScoreSceneAnalysis])
		}
	})

	t.Run("all perfect frames give full confidence", func(t *testing.T) {
		got := VideoConfidenceScores([]*domain.FrameAnalysis{
			{Objects: []string{"A"}, TextOverlays: []string{"b"}, Description: longDescription, Confidence: 1},
		})
		if !approxEqual(got.Overall(), 1.0) {
			t.Errorf("overall = %v, want 1", got.Overall())
		}
	})
}

func TestIsFrameScore(t *testing.T) {
	cases := map[string]bool{
		"frame_0":          true,
		"frame_12":         true,
		"frame_extraction": false,
		"frame_":           false,
		"overall":          false,
	}
	for k, want := range cases {
		if got := isFrameScore(k); got != want {
			t.Errorf("isFrameScore(%q) = %v, want %v", k, got, want)
		}
	}
}
