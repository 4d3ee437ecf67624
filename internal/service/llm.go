package service

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// ChatClient runs a single system+user chat completion.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ChatService calls an OpenAI-compatible chat completion model.
type ChatService struct {
	client      *resty.Client
	model       string
	endpoint    string
	maxTokens   int
	temperature float32
}

// NewChatService creates a chat service. Zero MaxTokens defaults to 1000.
func NewChatService(cfg *ModelConfig) *ChatService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	return &ChatService{
		client:      newOpenAIClient(cfg.APIKey, timeout),
		model:       cfg.Model,
		endpoint:    baseURLOrDefault(cfg.BaseURL) + "/chat/completions",
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// GetModel returns the model name being used.
func (s *ChatService) GetModel() string {
	return s.model
}

// Complete sends system and user messages and returns the reply text.
func (s *ChatService) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	return postChat(ctx, s.client, s.endpoint, &chatRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}, "chat")
}
