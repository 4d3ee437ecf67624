package media

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
)

const (
	defaultMaxFrames     = 10
	defaultFrameInterval = 1.0
)

// SamplerConfig controls frame sampling.
type SamplerConfig struct {
	MaxFrames     int     // default frame budget per video
	FrameInterval float64 // seconds between samples before the budget forces a wider step
	MaxFrameEdge  int     // frames whose long edge exceeds this are downscaled; 0 disables
}

// FrameSampler extracts evenly spaced still frames from a video into temp JPEG files.
type FrameSampler struct {
	ff       *FFmpeg
	max      int
	interval float64
	maxEdge  int
}

// NewFrameSampler creates a sampler backed by ff.
func NewFrameSampler(ff *FFmpeg, cfg *SamplerConfig) *FrameSampler {
	s := &FrameSampler{ff: ff, max: defaultMaxFrames, interval: defaultFrameInterval}
	if cfg != nil {
		if cfg.MaxFrames > 0 {
			s.max = cfg.MaxFrames
		}
		if cfg.FrameInterval > 0 {
			s.interval = cfg.FrameInterval
		}
		s.maxEdge = cfg.MaxFrameEdge
	}
	return s
}

// MaxFrames returns the default frame budget.
func (s *FrameSampler) MaxFrames() int {
	return s.max
}

// FrameStep returns the distance in frames between two samples.
// The step covers interval seconds of video, widened to totalFrames/maxFrames when
// that would otherwise leave the tail of a long video unsampled.
func FrameStep(fps, interval float64, totalFrames, maxFrames int) int {
	step := int(fps * interval)
	if step < 1 {
		step = 1
	}
	if maxFrames > 0 && totalFrames > maxFrames*step {
		step = totalFrames / maxFrames
	}
	return step
}

// Sample extracts up to maxFrames frames from video. maxFrames <= 0 uses the configured budget.
// Each returned frame owns a temp file that the caller must delete.
//
// Returns domain.ErrNotFound when the file is missing and domain.ErrCorrupt when it cannot be
// opened. An empty slice with a nil error means the video opened but no frame could be read.
func (s *FrameSampler) Sample(ctx context.Context, video domain.VideoFile, maxFrames int) ([]domain.ImageFrame, error) {
	if maxFrames <= 0 {
		maxFrames = s.max
	}

	info, err := s.ff.ProbeVideo(ctx, video.Path)
	if err != nil {
		return nil, err
	}

	fps := video.FPS
	if fps <= 0 {
		fps = info.FPS
	}
	total := info.FrameCount
	if total <= 0 {
		total = video.TotalFrames()
	}
	if total <= 0 {
		total = info.TotalFrames()
	}

	step := 1
	if total > 0 && fps > 0 {
		step = FrameStep(fps, s.interval, total, maxFrames)
	}

	logger.CtxDebug(ctx, "Sampling frames: path=%s, fps=%.2f, total_frames=%d, step=%d, max=%d",
		video.Path, fps, total, step, maxFrames)

	frames := make([]domain.ImageFrame, 0, maxFrames)
	for idx := 0; len(frames) < maxFrames; idx += step {
		if total > 0 && idx >= total {
			break
		}
		if err := ctx.Err(); err != nil {
			RemoveFrames(frames)
			return nil, err
		}

		var ts float64
		if fps > 0 {
			ts = float64(idx) / fps
		}
		frame, ok := s.extractFrame(ctx, video.Path, ts)
		if !ok {
			break
		}
		frames = append(frames, frame)

		// Without a frame rate there is no way to seek, so only the first frame is taken.
		if fps <= 0 {
			break
		}
	}

	logger.CtxInfo(ctx, "Extracted %d frames from %s", len(frames), video.Path)
	return frames, nil
}

// extractFrame writes the frame at ts seconds to a temp file. It reports false when
// nothing could be decoded at that position, which ends sampling.
func (s *FrameSampler) extractFrame(ctx context.Context, path string, ts float64) (domain.ImageFrame, bool) {
	out, err := s.ff.tempFile("frame-*.jpg")
	if err != nil {
		logger.CtxWarn(ctx, "Failed to reserve frame file: %v", err)
		return domain.ImageFrame{}, false
	}

	_, err = s.ff.runner.Run(ctx, s.ff.ffmpeg,
		"-v", "error",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		out,
	)
	if err != nil || !nonEmptyFile(out) {
		os.Remove(out)
		if err != nil {
			logger.CtxDebug(ctx, "No frame at %.3fs: %v", ts, err)
		}
		return domain.ImageFrame{}, false
	}

	res, err := fitFrame(out, s.maxEdge)
	if err != nil {
		os.Remove(out)
		logger.CtxWarn(ctx, "Unreadable frame at %.3fs: %v", ts, err)
		return domain.ImageFrame{}, false
	}

	timestamp := ts
	return domain.ImageFrame{
		Path:       out,
		Timestamp:  &timestamp,
		Resolution: res,
	}, true
}

// RemoveFrames deletes the temp files behind frames, ignoring already-missing files.
func RemoveFrames(frames []domain.ImageFrame) {
	for _, f := range frames {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to delete frame file %s: %v", f.Path, err)
		}
	}
}

// String describes the sampler configuration.
func (s *FrameSampler) String() string {
	return fmt.Sprintf("FrameSampler(max=%d, interval=%.2fs, max_edge=%d)", s.max, s.interval, s.maxEdge)
}
