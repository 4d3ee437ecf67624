package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// VisionClient sends one image and a prompt to a vision-capable model and returns its text reply.
type VisionClient interface {
	AnalyzeImage(ctx context.Context, imageData []byte, format, prompt string) (string, error)
}

// VisionService calls an OpenAI-compatible vision model.
type VisionService struct {
	client      *resty.Client
	model       string
	endpoint    string
	maxTokens   int
	temperature float32
}

// NewVisionService creates a new vision service.
// Parameters:
//   - cfg: model, API key, base URL and sampling settings.
//
// Returns:
//   - *VisionService: initialized vision client wrapper.
func NewVisionService(cfg *ModelConfig) *VisionService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}

	return &VisionService{
		client:      newOpenAIClient(cfg.APIKey, timeout),
		model:       cfg.Model,
		endpoint:    baseURLOrDefault(cfg.BaseURL) + "/chat/completions",
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// GetModel returns the model name being used.
func (s *VisionService) GetModel() string {
	return s.model
}

// AnalyzeImage submits the image as a base64 data URL with high detail.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageData: raw image bytes (jpg, png, gif or webp).
//   - format: image format extension.
//   - prompt: analysis instructions.
//
// Returns:
//   - string: the model's free-text reply.
//   - error: wraps domain.ErrBackend if the API request fails.
func (s *VisionService) AnalyzeImage(ctx context.Context, imageData []byte, format, prompt string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", getMIMEType(format), base64.StdEncoding.EncodeToString(imageData))

	req := &chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []interface{}{
					chatTextContent{Type: "text", Text: prompt},
					chatImageContent{
						Type:     "image_url",
						ImageURL: chatImageURL{URL: dataURL, Detail: "high"},
					},
				},
			},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	return postChat(ctx, s.client, s.endpoint, req, "vision")
}

// readImageFile loads a frame from disk together with its format extension.
func readImageFile(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return data, format, nil
}

func getMIMEType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
