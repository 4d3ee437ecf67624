package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/timmy/reelsense/internal/domain"
)

const floatTolerance = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

type fakeVision struct {
	reply  string
	err    error
	format string
	prompt string
	calls  int
}

func (f *fakeVision) AnalyzeImage(ctx context.Context, imageData []byte, format, prompt string) (string, error) {
	f.calls++
	f.format = format
	f.prompt = prompt
	return f.reply, f.err
}

func TestParseVisionResponse(t *testing.T) {
	t.Run("objects overlays and certainty", func(t *testing.T) {
		resp := "Objects visible: pizza table plate\nText overlay: Best Pizza In Town\nThe lighting is clear."
		got := ParseVisionResponse(resp)

		wantObjects := []string{"Objects", "Pizza", "Table", "Plate"}
		if !reflect.DeepEqual(got.Objects, wantObjects) {
			t.Errorf("Objects = %v, want %v", got.Objects, wantObjects)
		}
		wantOverlays := []string{"best pizza in town"}
		if !reflect.DeepEqual(got.TextOverlays, wantOverlays) {
			t.Errorf("TextOverlays = %v, want %v", got.TextOverlays, wantOverlays)
		}
		if got.Description != resp {
			t.Errorf("Description = %q, want raw response", got.Description)
		}

		want := 0.6 + 0.2 + (2.0/3.0)*0.2 + float64(len(resp))/1000*0.1
		if !approxEqual(got.Confidence, want) {
			t.Errorf("Confidence = %v, want %v", got.Confidence, want)
		}
	})

	t.Run("nothing detected is penalized", func(t *testing.T) {
		resp := "Nothing here."
		got := ParseVisionResponse(resp)
		if len(got.Objects) != 0 || len(got.TextOverlays) != 0 {
			t.Errorf("expected no detections, got %v / %v", got.Objects, got.TextOverlays)
		}
		want := 0.6 - 0.2 + float64(len(resp))/1000*0.1
		if !approxEqual(got.Confidence, want) {
			t.Errorf("Confidence = %v, want %v", got.Confidence, want)
		}
	})

	t.Run("objects are capped and deduplicated", func(t *testing.T) {
		resp := "item list alpha bravo charlie delta echoes foxtrot golfs hotel india juliet alpha"
		got := ParseVisionResponse(resp)
		if len(got.Objects) != maxFrameObjects {
			t.Fatalf("len(Objects) = %d, want %d", len(got.Objects), maxFrameObjects)
		}
		if got.Objects[0] != "Item" || got.Objects[2] != "Alpha" {
			t.Errorf("unexpected order: %v", got.Objects)
		}
	})

	t.Run("overlays are capped", func(t *testing.T) {
		var lines []string
		for _, s := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
			lines = append(lines, "caption: "+s)
		}
		got := ParseVisionResponse(strings.Join(lines, "\n"))
		if len(got.TextOverlays) != maxFrameOverlays {
			t.Errorf("len(TextOverlays) = %d, want %d", len(got.TextOverlays), maxFrameOverlays)
		}
	})

	t.Run("overlay needs a colon", func(t *testing.T) {
		got := ParseVisionResponse("There is some text on the wall")
		if len(got.TextOverlays) != 0 {
			t.Errorf("TextOverlays = %v, want none", got.TextOverlays)
		}
	})

	t.Run("confidence stays within bounds", func(t *testing.T) {
		long := strings.Repeat("objects clearly visible: lamp chair sofa desk\n", 100)
		got := ParseVisionResponse(long)
		if got.Confidence > 1.0 || got.Confidence < 0.1 {
			t.Errorf("Confidence = %v out of [0.1, 1]", got.Confidence)
		}
	})
}

func TestVisualAnalyzer_AnalyzeFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(path, []byte("jpegdata"), 0644); err != nil {
		t.Fatal(err)
	}
	ts := 2.5
	frame := domain.ImageFrame{Path: path, Timestamp: &ts}

	t.Run("success", func(t *testing.T) {
		vision := &fakeVision{reply: "Objects: none\nText: SALE"}
		got := NewVisualAnalyzer(vision).AnalyzeFrame(context.Background(), frame)
		if got.Failed {
			t.Fatalf("unexpected failure: %s", got.Description)
		}
		if vision.format != "jpg" {
			t.Errorf("format = %q, want jpg", vision.format)
		}
		if vision.prompt == "" {
			t.Error("prompt was empty")
		}
		if got.Timestamp == nil || *got.Timestamp != ts {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
		}
		if !reflect.DeepEqual(got.Objects, []string{"None"}) {
			t.Errorf("Objects = %v", got.Objects)
		}
		if !reflect.DeepEqual(got.TextOverlays, []string{"sale"}) {
			t.Errorf("TextOverlays = %v", got.TextOverlays)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		vision := &fakeVision{err: errors.New("rate limited")}
		got := NewVisualAnalyzer(vision).AnalyzeFrame(context.Background(), frame)
		if !got.Failed || got.Confidence != 0 {
			t.Errorf("expected failed zero-confidence result, got %+v", got)
		}
		if !strings.Contains(got.Description, "rate limited") {
			t.Errorf("Description = %q, want failure reason", got.Description)
		}
		if len(got.Objects) != 0 || len(got.TextOverlays) != 0 {
			t.Errorf("expected empty detections")
		}
	})

	t.Run("unreadable frame", func(t *testing.T) {
		vision := &fakeVision{reply: "unused"}
		got := NewVisualAnalyzer(vision).AnalyzeFrame(context.Background(), domain.ImageFrame{Path: filepath.Join(dir, "missing.jpg")})
		if !got.Failed {
			t.Error("expected failure for missing frame file")
		}
		if vision.calls != 0 {
			t.Errorf("vision called %d times, want 0", vision.calls)
		}
	})
}
