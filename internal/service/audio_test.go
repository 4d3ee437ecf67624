package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timmy/reelsense/internal/domain"
)

type fakeTranscriber struct {
	result *Transcription
	err    error
	paths  []string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (*Transcription, error) {
	f.paths = append(f.paths, path)
	return f.result, f.err
}

type fakeExtractor struct {
	dir        string
	err        error
	extracted  []string
	transcoded []string
}

func (f *fakeExtractor) write(name string) (*domain.AudioFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("RIFFdata"), 0644); err != nil {
		return nil, err
	}
	return &domain.AudioFile{Path: path, SampleRate: 16000, Channels: 1}, nil
}

func (f *fakeExtractor) ExtractAudio(ctx context.Context, video domain.VideoFile) (*domain.AudioFile, error) {
	a, err := f.write("extracted.wav")
	if a != nil {
		f.extracted = append(f.extracted, a.Path)
	}
	return a, err
}

func (f *fakeExtractor) Transcode(ctx context.Context, audio domain.AudioFile) (*domain.AudioFile, error) {
	a, err := f.write("transcoded.wav")
	if a != nil {
		f.transcoded = append(f.transcoded, a.Path)
	}
	return a, err
}

func writeAudio(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscriptConfidence(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		segments   []domain.TranscriptSegment
		want       float64
	}{
		{"no segments long transcript", "this pizza is amazing", nil, 0.8},
		{"no segments short transcript", "ok", nil, 0.5},
		{"whitespace padded short", "   hi there   ", nil, 0.5},
		{"short transcript counts characters", "日本語のテキストです", nil, 0.5},
		{"long multibyte transcript", "日本語のテキストですね", nil, 0.8},
		{"perfect logprob", "x", []domain.TranscriptSegment{{Confidence: 0}}, 1.0},
		{"averaged logprob", "x", []domain.TranscriptSegment{{Confidence: -1}, {Confidence: -2}}, 0.7},
		{"floor clamps at zero", "x", []domain.TranscriptSegment{{Confidence: -9}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TranscriptConfidence(tt.transcript, tt.segments); !approxEqual(got, tt.want) {
				t.Errorf("TranscriptConfidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAudioProcessor_TranscribeAudio(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		path := writeAudio(t, "clip.wav", 64)
		tr := &fakeTranscriber{result: &Transcription{Text: "this pizza is amazing", Language: "en"}}
		got, err := NewAudioProcessor(&fakeExtractor{}, tr, 0).TranscribeAudio(ctx, domain.AudioFile{Path: path})
		if err != nil {
			t.Fatalf("TranscribeAudio() error = %v", err)
		}
		if got.Transcript != "this pizza is amazing" {
			t.Errorf("Transcript = %q", got.Transcript)
		}
		if got.Language == nil || *got.Language != "en" {
			t.Errorf("Language = %v, want en", got.Language)
		}
		if !approxEqual(got.Confidence, 0.8) {
			t.Errorf("Confidence = %v, want 0.8", got.Confidence)
		}
		if got.Segments == nil {
			t.Error("Segments should be non-nil")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		tr := &fakeTranscriber{}
		_, err := NewAudioProcessor(&fakeExtractor{}, tr, 0).TranscribeAudio(ctx, domain.AudioFile{Path: filepath.Join(t.TempDir(), "gone.wav")})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
		if len(tr.paths) != 0 {
			t.Error("backend should not be called")
		}
	})

	t.Run("too large", func(t *testing.T) {
		path := writeAudio(t, "big.wav", 2*1024*1024)
		tr := &fakeTranscriber{}
		got, err := NewAudioProcessor(&fakeExtractor{}, tr, 1).TranscribeAudio(ctx, domain.AudioFile{Path: path})
		if err != nil {
			t.Fatalf("TranscribeAudio() error = %v", err)
		}
		if got.Confidence != 0 {
			t.Errorf("Confidence = %v, want 0", got.Confidence)
		}
		if !strings.Contains(got.Transcript, "failed") || !strings.Contains(got.Transcript, "Audio file too large (2.0MB). Maximum size is 1MB") {
			t.Errorf("Transcript = %q", got.Transcript)
		}
		if len(tr.paths) != 0 {
			t.Error("backend should not be called")
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		path := writeAudio(t, "clip.wav", 64)
		tr := &fakeTranscriber{err: errors.New("quota exceeded")}
		got, err := NewAudioProcessor(&fakeExtractor{}, tr, 0).TranscribeAudio(ctx, domain.AudioFile{Path: path})
		if err != nil {
			t.Fatalf("TranscribeAudio() error = %v", err)
		}
		if got.Confidence != 0 || got.Transcript != "Transcription failed: quota exceeded" {
			t.Errorf("got %+v", got)
		}
	})
}

func TestAudioProcessor_ProcessVideoAudio(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts transcribes and cleans up", func(t *testing.T) {
		ex := &fakeExtractor{dir: t.TempDir()}
		tr := &fakeTranscriber{result: &Transcription{Text: "hello from the kitchen"}}
		got := NewAudioProcessor(ex, tr, 0).ProcessVideoAudio(ctx, domain.VideoFile{Path: "clip.mp4"})

		if got.Transcript != "hello from the kitchen" {
			t.Errorf("Transcript = %q", got.Transcript)
		}
		if len(ex.extracted) != 1 || tr.paths[0] != ex.extracted[0] {
			t.Fatalf("transcriber paths = %v, extracted = %v", tr.paths, ex.extracted)
		}
		if _, err := os.Stat(ex.extracted[0]); !os.IsNotExist(err) {
			t.Error("extracted audio was not deleted")
		}
	})

	t.Run("extraction failure", func(t *testing.T) {
		ex := &fakeExtractor{err: errors.New("no audio stream")}
		got := NewAudioProcessor(ex, &fakeTranscriber{}, 0).ProcessVideoAudio(ctx, domain.VideoFile{Path: "clip.mp4"})
		if got.Confidence != 0 {
			t.Errorf("Confidence = %v, want 0", got.Confidence)
		}
		if got.Transcript != "Audio processing failed: no audio stream" {
			t.Errorf("Transcript = %q", got.Transcript)
		}
	})
}

func TestAudioProcessor_ProcessAudio(t *testing.T) {
	ctx := context.Background()

	t.Run("supported format is sent as is", func(t *testing.T) {
		path := writeAudio(t, "voice.mp3", 64)
		ex := &fakeExtractor{dir: t.TempDir()}
		tr := &fakeTranscriber{result: &Transcription{Text: "good morning everyone"}}
		NewAudioProcessor(ex, tr, 0).ProcessAudio(ctx, domain.AudioFile{Path: path})

		if len(ex.transcoded) != 0 {
			t.Error("unexpected transcode")
		}
		if len(tr.paths) != 1 || tr.paths[0] != path {
			t.Errorf("transcriber paths = %v", tr.paths)
		}
	})

	t.Run("unsupported format is transcoded", func(t *testing.T) {
		path := writeAudio(t, "voice.aiff", 64)
		ex := &fakeExtractor{dir: t.TempDir()}
		tr := &fakeTranscriber{result: &Transcription{Text: "good morning everyone"}}
		got := NewAudioProcessor(ex, tr, 0).ProcessAudio(ctx, domain.AudioFile{Path: path})

		if got.Confidence == 0 {
			t.Fatalf("unexpected failure: %s", got.Transcript)
		}
		if len(ex.transcoded) != 1 || tr.paths[0] != ex.transcoded[0] {
			t.Fatalf("transcriber paths = %v, transcoded = %v", tr.paths, ex.transcoded)
		}
		if _, err := os.Stat(ex.transcoded[0]); !os.IsNotExist(err) {
			t.Error("transcoded audio was not deleted")
		}
		if _, err := os.Stat(path); err != nil {
			t.Error("caller's audio file must be kept")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		got := NewAudioProcessor(&fakeExtractor{}, &fakeTranscriber{}, 0).ProcessAudio(ctx, domain.AudioFile{Path: filepath.Join(t.TempDir(), "gone.wav")})
		if got.Confidence != 0 || !strings.HasPrefix(got.Transcript, "Audio processing failed") {
			t.Errorf("got %+v", got)
		}
	})
}
