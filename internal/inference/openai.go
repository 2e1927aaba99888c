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
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
)

// OpenAIClient implements Client using OpenAI's Chat Completions API with
// image content parts.
type OpenAIClient struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
}

// NewOpenAIClient creates a new OpenAI API client.
func NewOpenAIClient(cfg config.InferenceSettings) (*OpenAIClient, error) {
	c := &OpenAIClient{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		baseURL:   cfg.BaseURL,
		client:    &http.Client{},
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("openai API key is not configured (set inference.api_key or OPENAI_API_KEY)")
	}

	if c.model == "" {
		c.model = defaultOpenAIModel
	}
	if c.maxTokens == 0 {
		c.maxTokens = 50
	}
	if c.baseURL == "" {
		c.baseURL = defaultOpenAIURL
	}

	return c, nil
}

// Name returns the human-readable client name.
func (c *OpenAIClient) Name() string {
	return fmt.Sprintf("OpenAI (%s)", c.model)
}

// Classify sends the conversation and returns the model's reply text.
func (c *OpenAIClient) Classify(ctx context.Context, system string, turns []Turn) (string, error) {
	messages := []openAIMessage{
		{Role: "system", Content: system},
	}
	for _, turn := range turns {
		content := []openAIContent{
			{Type: "text", Text: turn.Text},
		}
		if turn.ImageB64 != "" {
			content = append(content, openAIContent{
				Type: "image_url",
				ImageURL: &openAIImageURL{
					URL: "data:image/jpeg;base64," + turn.ImageB64,
				},
			})
		}
		messages = append(messages, openAIMessage{Role: "user", Content: content})
	}

	apiReq := openAIRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
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
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrThrottled
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return apiResp.Choices[0].Message.Content, nil
}

// Close releases any resources.
func (c *OpenAIClient) Close() error {
	return nil
}

// openAIRequest represents the API request structure.
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// openAIMessage represents one message in the conversation. Content is a
// plain string for the system turn and a content-part list for user turns.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// openAIContent represents one content part of a user message.
type openAIContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

// openAIResponse represents the API response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// openAIError represents an API error response.
type openAIError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
