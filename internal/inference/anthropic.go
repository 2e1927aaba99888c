package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/cgale/vigil/internal/config"
)

const (
	defaultAnthropicURL   = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicAPIVersion   = "2023-06-01"
)

// AnthropicClient implements Client using Anthropic's Messages API with
// base64 image blocks.
type AnthropicClient struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
}

// NewAnthropicClient creates a new Anthropic API client.
func NewAnthropicClient(cfg config.InferenceSettings) (*AnthropicClient, error) {
	c := &AnthropicClient{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		baseURL:   cfg.BaseURL,
		client:    &http.Client{},
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is not configured (set inference.api_key or ANTHROPIC_API_KEY)")
	}

	if c.model == "" {
		c.model = defaultAnthropicModel
	}
	if c.maxTokens == 0 {
		c.maxTokens = 50
	}
	if c.baseURL == "" {
		c.baseURL = defaultAnthropicURL
	}

	return c, nil
}

// Name returns the human-readable client name.
func (c *AnthropicClient) Name() string {
	return fmt.Sprintf("Anthropic (%s)", c.model)
}

// Classify sends the conversation and returns the model's reply text.
func (c *AnthropicClient) Classify(ctx context.Context, system string, turns []Turn) (string, error) {
	messages := make([]anthropicMessage, 0, len(turns))
	for _, turn := range turns {
		content := []anthropicContent{
			{Type: "text", Text: turn.Text},
		}
		if turn.ImageB64 != "" {
			content = append(content, anthropicContent{
				Type: "image",
				Source: &anthropicImageSource{
					Type:      "base64",
					MediaType: "image/jpeg",
					Data:      turn.ImageB64,
				},
			})
		}
		messages = append(messages, anthropicMessage{Role: "user", Content: content})
	}

	apiReq := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  messages,
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	// 529 is Anthropic's overloaded signal, retryable like 429
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 529 {
		return "", ErrThrottled
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	for _, content := range apiResp.Content {
		if content.Type == "text" {
			return content.Text, nil
		}
	}

	return "", fmt.Errorf("no text content in response")
}

// Close releases any resources.
func (c *AnthropicClient) Close() error {
	return nil
}

// anthropicRequest represents the API request structure.
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

// anthropicMessage represents a message in the conversation.
type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

// anthropicContent represents one content block.
type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// anthropicResponse represents the API response structure.
type anthropicResponse struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicError represents an API error response.
type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
