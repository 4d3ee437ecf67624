package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/reelsense/internal/domain"
)

// Transcription is a transcription backend's reply.
// Segment confidences hold the backend's average log-probabilities.
type Transcription struct {
	Text     string
	Language string
	Segments []domain.TranscriptSegment
}

// TranscriptionClient converts speech in an audio file to text.
type TranscriptionClient interface {
	Transcribe(ctx context.Context, path string) (*Transcription, error)
}

// WhisperConfig holds configuration for the Whisper transcription service.
type WhisperConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// WhisperService calls an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperService struct {
	client   *resty.Client
	model    string
	endpoint string
}

// NewWhisperService creates a transcription service.
func NewWhisperService(cfg *WhisperConfig) *WhisperService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}

	return &WhisperService{
		client:   newOpenAIClient(cfg.APIKey, timeout),
		model:    model,
		endpoint: baseURLOrDefault(cfg.BaseURL) + "/audio/transcriptions",
	}
}

// GetModel returns the model name being used.
func (s *WhisperService) GetModel() string {
	return s.model
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
	Error *apiError `json:"error,omitempty"`
}

// Transcribe uploads the file as multipart form data and requests verbose JSON so
// segment log-probabilities are returned. Language is auto-detected.
func (s *WhisperService) Transcribe(ctx context.Context, path string) (*Transcription, error) {
	var resp whisperResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetFormData(map[string]string{
			"model":           s.model,
			"response_format": "verbose_json",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call transcription API for %s: %v", domain.ErrBackend, filepath.Base(path), err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("%w: transcription API returned error: %s", domain.ErrBackend, describeHTTPError(httpResp, resp.Error))
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: transcription API error: %s", domain.ErrBackend, resp.Error.Message)
	}

	out := &Transcription{
		Text:     resp.Text,
		Language: resp.Language,
		Segments: make([]domain.TranscriptSegment, 0, len(resp.Segments)),
	}
	for _, seg := range resp.Segments {
		out.Segments = append(out.Segments, domain.TranscriptSegment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			Confidence: seg.AvgLogprob,
		})
	}
	return out, nil
}
