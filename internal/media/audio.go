package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
)

const (
	pcmCodec      = "pcm_s16le"
	pcmSampleRate = "16000"
	pcmChannels   = "1"
)

// supportedAudioExts are accepted by the transcription backend as-is.
var supportedAudioExts = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {}, ".flac": {}, ".ogg": {},
	".mp4": {}, ".mov": {}, ".avi": {},
}

// IsSupportedAudio reports whether path has an extension the transcription backend accepts.
func IsSupportedAudio(path string) bool {
	_, ok := supportedAudioExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ExtractAudio demuxes the audio track of video into a mono 16 kHz PCM WAV temp file.
// The caller owns the returned file.
//
// Returns domain.ErrNotFound when the video is missing and domain.ErrExtraction when
// ffmpeg fails or the result has no audio stream.
func (f *FFmpeg) ExtractAudio(ctx context.Context, video domain.VideoFile) (*domain.AudioFile, error) {
	if err := statFile(video.Path); err != nil {
		return nil, err
	}
	audio, err := f.toPCM(ctx, video.Path)
	if err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "Extracted audio: %s -> %s (%.1fs)", video.Path, audio.Path, audio.Duration)
	return audio, nil
}

// Transcode converts audio to mono 16 kHz PCM WAV in a temp file owned by the caller.
func (f *FFmpeg) Transcode(ctx context.Context, audio domain.AudioFile) (*domain.AudioFile, error) {
	if err := statFile(audio.Path); err != nil {
		return nil, err
	}
	converted, err := f.toPCM(ctx, audio.Path)
	if err != nil {
		return nil, err
	}
	if converted.Duration <= 0 {
		converted.Duration = audio.Duration
	}
	logger.CtxInfo(ctx, "Transcoded audio: %s -> %s", audio.Path, converted.Path)
	return converted, nil
}

func (f *FFmpeg) toPCM(ctx context.Context, src string) (*domain.AudioFile, error) {
	out, err := f.tempFile("audio-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}

	_, err = f.runner.Run(ctx, f.ffmpeg,
		"-v", "error",
		"-i", src,
		"-vn",
		"-acodec", pcmCodec,
		"-ac", pcmChannels,
		"-ar", pcmSampleRate,
		"-y",
		out,
	)
	if err != nil {
		os.Remove(out)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtraction, src, err)
	}
	if !nonEmptyFile(out) {
		os.Remove(out)
		return nil, fmt.Errorf("%w: %s: no output file created", domain.ErrExtraction, src)
	}

	audio, err := f.ProbeAudio(ctx, out)
	if err != nil {
		os.Remove(out)
		if errors.Is(err, domain.ErrExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	if audio.SampleRate == 0 {
		audio.SampleRate = 16000
	}
	if audio.Channels == 0 {
		audio.Channels = 1
	}
	return audio, nil
}
