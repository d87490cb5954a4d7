package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAnthropicURL   = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	anthropicMaxTokens    = 1024
	anthropicProviderName = "anthropic"
	keyedListTimeout      = 10 * time.Second
)

// AnthropicClient is an HTTP client for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAnthropicClient creates an Anthropic client. An empty apiKey makes
// every call fail with *MissingKeyError.
func NewAnthropicClient(apiKey, baseURL string, hc *http.Client) *AnthropicClient {
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	if hc == nil {
		hc = NewHTTPClient(nil)
	}
	return &AnthropicClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  hc,
	}
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return anthropicProviderName }

func (c *AnthropicClient) headers() (map[string]string, error) {
	if c.apiKey == "" {
		return nil, &MissingKeyError{Provider: anthropicProviderName, EnvVar: "ANTHROPIC_API_KEY"}
	}
	return map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, nil
}

// ListModels returns the available model ids, newest names first.
func (c *AnthropicClient) ListModels(ctx context.Context) ([]string, error) {
	headers, err := c.headers()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, keyedListTimeout)
	defer cancel()

	var list modelList
	if err := doJSON(ctx, c.client, anthropicProviderName, http.MethodGet, c.baseURL+"/v1/models?limit=1000", headers, nil, &list); err != nil {
		return nil, err
	}
	return sortModels(list.ids(nil), true), nil
}

// Complete sends a non-streaming Messages request.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	headers, err := c.headers()
	if err != nil {
		return nil, err
	}
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	msgs := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}
	body := map[string]any{
		"model":      req.Model,
		"messages":   msgs,
		"max_tokens": maxTokens,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	var result anthropicMessageResponse
	if err := doJSON(ctx, c.client, anthropicProviderName, http.MethodPost, c.baseURL+"/v1/messages", headers, body, &result); err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return &CompletionResponse{
		Content:    content.String(),
		StopReason: result.StopReason,
		Usage: Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
		Model:    result.Model,
		Duration: time.Since(start),
	}, nil
}

type anthropicMessageResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
