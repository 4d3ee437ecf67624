package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/reelsense/internal/domain"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// ModelConfig holds the connection settings shared by every OpenAI-compatible client.
type ModelConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// newOpenAIClient builds a resty client with auth headers and a request timeout.
func newOpenAIClient(apiKey string, timeout time.Duration) *resty.Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetTimeout(timeout)
	return client
}

func baseURLOrDefault(baseURL string) string {
	if baseURL == "" {
		return defaultOpenAIBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string, or []interface{} for user turns with images
}

type chatTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatImageContent struct {
	Type     string       `json:"type"`
	ImageURL chatImageURL `json:"image_url"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// postChat sends a chat completion request and returns the first choice's content.
// Errors wrap domain.ErrBackend.
func postChat(ctx context.Context, client *resty.Client, endpoint string, req *chatRequest, label string) (string, error) {
	var resp chatResponse
	httpResp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: failed to call %s API: %v", domain.ErrBackend, label, err)
	}

	if httpResp.IsError() {
		return "", fmt.Errorf("%w: %s API returned error: %s", domain.ErrBackend, label, describeHTTPError(httpResp, resp.Error))
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s API error: %s", domain.ErrBackend, label, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		errorMsg := fmt.Sprintf("no choices in response (status: %d)", httpResp.StatusCode())
		if len(httpResp.Body()) > 0 {
			errorMsg += fmt.Sprintf(", response body: %s", string(httpResp.Body()))
		}
		return "", fmt.Errorf("%w: no response from %s API: %s", domain.ErrBackend, label, errorMsg)
	}

	return resp.Choices[0].Message.Content, nil
}

func describeHTTPError(httpResp *resty.Response, apiErr *apiError) string {
	if apiErr != nil && apiErr.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), apiErr.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
}
