package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/timmy/reelsense/internal/domain"
)

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// VideoInfo is what ffprobe reports about a video's first video stream.
type VideoInfo struct {
	domain.VideoFile
	FrameCount int // 0 when the container does not report it
}

func (f *FFmpeg) probe(ctx context.Context, path string) (*probeOutput, error) {
	out, err := f.runner.Run(ctx, f.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	if err != nil {
		return nil, err
	}
	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &parsed, nil
}

// ProbeVideo reads duration, frame rate, frame count and resolution of a video.
// Returns domain.ErrNotFound if the file is missing and domain.ErrCorrupt if it
// cannot be opened or has no video stream.
func (f *FFmpeg) ProbeVideo(ctx context.Context, path string) (*VideoInfo, error) {
	if err := statFile(path); err != nil {
		return nil, err
	}

	parsed, err := f.probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorrupt, path, err)
	}

	stream := findStream(parsed.Streams, "video")
	if stream == nil {
		return nil, fmt.Errorf("%w: %s: no video stream", domain.ErrCorrupt, path)
	}

	fps := parseRate(stream.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(stream.RFrameRate)
	}
	duration := parseFloat(stream.Duration)
	if duration <= 0 {
		duration = parseFloat(parsed.Format.Duration)
	}
	frames, _ := strconv.Atoi(stream.NbFrames)

	return &VideoInfo{
		VideoFile: domain.VideoFile{
			Path:       path,
			Duration:   duration,
			FPS:        fps,
			Resolution: domain.Resolution{Width: stream.Width, Height: stream.Height},
		},
		FrameCount: frames,
	}, nil
}

// ProbeAudio reads the first audio stream of a media file.
// Returns domain.ErrNotFound if the file is missing and domain.ErrExtraction if
// ffprobe fails or there is no audio stream.
func (f *FFmpeg) ProbeAudio(ctx context.Context, path string) (*domain.AudioFile, error) {
	if err := statFile(path); err != nil {
		return nil, err
	}

	parsed, err := f.probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtraction, path, err)
	}

	stream := findStream(parsed.Streams, "audio")
	if stream == nil {
		return nil, fmt.Errorf("%w: %s: no audio stream", domain.ErrExtraction, path)
	}

	duration := parseFloat(stream.Duration)
	if duration <= 0 {
		duration = parseFloat(parsed.Format.Duration)
	}
	sampleRate, _ := strconv.Atoi(stream.SampleRate)

	return &domain.AudioFile{
		Path:       path,
		Duration:   duration,
		SampleRate: sampleRate,
		Channels:   stream.Channels,
	}, nil
}

func statFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return nil
}

func findStream(streams []probeStream, codecType string) *probeStream {
	for i := range streams {
		if streams[i].CodecType == codecType {
			return &streams[i]
		}
	}
	return nil
}

// parseRate parses ffprobe rates such as "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
