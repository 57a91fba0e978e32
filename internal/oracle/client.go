package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chartsignal/internal/domain"
)

// Provider selects the vision API backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

const (
	openAIEndpoint    = "https://api.openai.com/v1/chat/completions"
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
)

// ClientConfig holds vision client configuration.
type ClientConfig struct {
	Provider    Provider
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o",
		MaxTokens:   500,
		Temperature: 0,
		Timeout:     30 * time.Second,
	}
}

// Client is an HTTP client for vision chat-completion APIs. It implements
// Oracle for OpenAI-compatible and Anthropic endpoints.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient creates a vision client from cfg, filling unset fields from the
// defaults.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.cfg.APIKey != ""
}

// Analyze sends one vision query and returns the model's text response.
func (c *Client) Analyze(ctx context.Context, img domain.ImageRef, instruction string) (string, error) {
	switch c.cfg.Provider {
	case ProviderOpenAI:
		return c.analyzeOpenAI(ctx, img, instruction)
	case ProviderAnthropic:
		return c.analyzeAnthropic(ctx, img, instruction)
	default:
		return "", fmt.Errorf("oracle: unsupported provider %q", c.cfg.Provider)
	}
}

// openAIRequest is the chat-completions payload with a multimodal user message.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string       `json:"role"`
	Content []openAIPart `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) analyzeOpenAI(ctx context.Context, img domain.ImageRef, instruction string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s",
		contentTypeOrDefault(img.ContentType),
		base64.StdEncoding.EncodeToString(img.Data),
	)

	req := openAIRequest{
		Model: c.cfg.Model,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIPart{
				{Type: "text", Text: instruction},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL, Detail: "high"}},
			},
		}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	respBody, err := c.post(ctx, openAIEndpoint, req, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("oracle: unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("oracle: API error: %s - %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// anthropicRequest is the messages-API payload with an image content block.
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content []anthropicPart `json:"content"`
}

type anthropicPart struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) analyzeAnthropic(ctx context.Context, img domain.ImageRef, instruction string) (string, error) {
	req := anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicPart{
				{Type: "image", Source: &anthropicSource{
					Type:      "base64",
					MediaType: contentTypeOrDefault(img.ContentType),
					Data:      base64.StdEncoding.EncodeToString(img.Data),
				}},
				{Type: "text", Text: instruction},
			},
		}},
	}

	respBody, err := c.post(ctx, anthropicEndpoint, req, map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("oracle: unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("oracle: API error: %s - %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("oracle: empty response")
	}
	return resp.Content[0].Text, nil
}

// post marshals payload, sends it with the given headers, and returns the raw
// response body.
func (c *Client) post(ctx context.Context, url string, payload any, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("oracle: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("oracle: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("oracle: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oracle: read response: %w", err)
	}
	return respBody, nil
}

func contentTypeOrDefault(ct string) string {
	if ct == "" {
		return "image/png"
	}
	return ct
}

// Compile-time interface check.
var _ Oracle = (*Client)(nil)
