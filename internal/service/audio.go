package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/timmy/reelsense/internal/domain"
	"github.com/timmy/reelsense/internal/logger"
	"github.com/timmy/reelsense/internal/media"
)

const (
	defaultMaxAudioMB = 25

	// Whisper segment log-probabilities are mapped from [-5, 0] onto [0, 1].
	logprobFloor = -5.0

	richTranscriptConfidence = 0.8
	thinTranscriptConfidence = 0.5
	minTranscriptLen         = 10
)

// AudioExtractor demuxes or converts audio into mono 16 kHz PCM temp files.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, video domain.VideoFile) (*domain.AudioFile, error)
	Transcode(ctx context.Context, audio domain.AudioFile) (*domain.AudioFile, error)
}

// AudioProcessor turns video soundtracks and standalone audio into transcriptions.
type AudioProcessor struct {
	extractor   AudioExtractor
	transcriber TranscriptionClient
	maxBytes    int64
	maxMB       int
}

// NewAudioProcessor creates an audio processor. maxFileMB <= 0 uses 25.
func NewAudioProcessor(extractor AudioExtractor, transcriber TranscriptionClient, maxFileMB int) *AudioProcessor {
	if maxFileMB <= 0 {
		maxFileMB = defaultMaxAudioMB
	}
	return &AudioProcessor{
		extractor:   extractor,
		transcriber: transcriber,
		maxBytes:    int64(maxFileMB) * 1024 * 1024,
		maxMB:       maxFileMB,
	}
}

// TranscribeAudio transcribes audio. A missing file returns domain.ErrNotFound; every
// other failure, including an oversized file, yields a zero-confidence transcription whose
// transcript carries the reason.
func (p *AudioProcessor) TranscribeAudio(ctx context.Context, audio domain.AudioFile) (*domain.AudioTranscription, error) {
	info, err := os.Stat(audio.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: audio file %s", domain.ErrNotFound, audio.Path)
		}
		return failedTranscription("Transcription failed", err), nil
	}

	logger.CtxInfo(ctx, "Transcribing audio file: %s", audio.Path)
	start := time.Now()

	if info.Size() > p.maxBytes {
		err := fmt.Errorf("%w: Audio file too large (%.1fMB). Maximum size is %dMB",
			domain.ErrFileTooLarge, float64(info.Size())/1024/1024, p.maxMB)
		logger.CtxError(ctx, "Transcription failed for %s: %v", audio.Path, err)
		return failedTranscription("Transcription failed", err), nil
	}

	resp, err := p.transcriber.Transcribe(ctx, audio.Path)
	if err != nil {
		logger.CtxError(ctx, "Transcription failed for %s: %v", audio.Path, err)
		return failedTranscription("Transcription failed", err), nil
	}

	result := &domain.AudioTranscription{
		Transcript: resp.Text,
		Segments:   resp.Segments,
		Confidence: TranscriptConfidence(resp.Text, resp.Segments),
	}
	if result.Segments == nil {
		result.Segments = []domain.TranscriptSegment{}
	}
	if resp.Language != "" {
		lang := resp.Language
		result.Language = &lang
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldSize:       len(resp.Text),
	}).WithConfidence(result.Confidence).Info(ctx,
		"Transcription completed: %d characters, language: %s", len(resp.Text), resp.Language)
	return result, nil
}

// ProcessVideoAudio extracts the soundtrack of video and transcribes it. It never returns
// an error; failures produce a zero-confidence transcription. The extracted temp audio is
// always deleted.
func (p *AudioProcessor) ProcessVideoAudio(ctx context.Context, video domain.VideoFile) *domain.AudioTranscription {
	logger.CtxInfo(ctx, "Processing audio from video: %s", video.Path)

	audio, err := p.extractor.ExtractAudio(ctx, video)
	if err != nil {
		logger.CtxError(ctx, "Video audio processing failed: %v", err)
		return failedTranscription("Audio processing failed", err)
	}
	defer removeTempAudio(ctx, audio.Path)

	result, err := p.TranscribeAudio(ctx, *audio)
	if err != nil {
		logger.CtxError(ctx, "Video audio processing failed: %v", err)
		return failedTranscription("Audio processing failed", err)
	}
	return result
}

// ProcessAudio transcribes a standalone audio file, transcoding formats the backend does
// not accept first. It never returns an error.
func (p *AudioProcessor) ProcessAudio(ctx context.Context, audio domain.AudioFile) *domain.AudioTranscription {
	logger.CtxInfo(ctx, "Processing audio file: %s", audio.Path)

	target := audio
	if !media.IsSupportedAudio(audio.Path) {
		logger.CtxWarn(ctx, "Unsupported audio format, transcoding: %s", audio.Path)
		converted, err := p.extractor.Transcode(ctx, audio)
		if err != nil {
			logger.CtxError(ctx, "Audio file processing failed: %v", err)
			return failedTranscription("Audio processing failed", err)
		}
		defer removeTempAudio(ctx, converted.Path)
		target = *converted
	}

	result, err := p.TranscribeAudio(ctx, target)
	if err != nil {
		logger.CtxError(ctx, "Audio file processing failed: %v", err)
		return failedTranscription("Audio processing failed", err)
	}
	return result
}

// TranscriptConfidence derives a confidence from segment log-probabilities, or from
// transcript length when there are no segments.
func TranscriptConfidence(transcript string, segments []domain.TranscriptSegment) float64 {
	if len(segments) > 0 {
		var sum float64
		for _, seg := range segments {
			sum += seg.Confidence
		}
		avg := sum / float64(len(segments))
		return clamp01((avg - logprobFloor) / -logprobFloor)
	}
	if utf8.RuneCountInString(strings.TrimSpace(transcript)) > minTranscriptLen {
		return richTranscriptConfidence
	}
	return thinTranscriptConfidence
}

func failedTranscription(prefix string, err error) *domain.AudioTranscription {
	return &domain.AudioTranscription{
		Transcript: fmt.Sprintf("%s: %v", prefix, err),
		Segments:   []domain.TranscriptSegment{},
		Confidence: 0,
	}
}

func removeTempAudio(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.CtxWarn(ctx, "Failed to delete temporary audio file: %v", err)
		return
	}
	logger.CtxDebug(ctx, "Cleaned up temporary audio file: %s", path)
}
