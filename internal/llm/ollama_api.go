package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	ollamaListTimeout  = 5 * time.Second
	ollamaProviderName = "ollama"
)

// OllamaClient is an HTTP client for a local Ollama server.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaClient creates an Ollama client. baseURL defaults to
// http://localhost:11434.
func NewOllamaClient(baseURL string, hc *http.Client) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if hc == nil {
		hc = NewHTTPClient(nil)
	}
	return &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  hc,
	}
}

// Name returns the provider name.
func (o *OllamaClient) Name() string { return ollamaProviderName }

// ListModels returns the locally installed models in server order.
func (o *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ollamaListTimeout)
	defer cancel()

	var tags ollamaTagsResponse
	if err := doJSON(ctx, o.client, ollamaProviderName, http.MethodGet, o.baseURL+"/api/tags", nil, nil, &tags); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// Complete sends a non-streaming generate request.
func (o *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	body := map[string]any{
		"model":  req.Model,
		"prompt": buildPrompt(req),
		"stream": false,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	options := map[string]any{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		body["options"] = options
	}

	var result ollamaGenerateResponse
	if err := doJSON(ctx, o.client, ollamaProviderName, http.MethodPost, o.baseURL+"/api/generate", nil, body, &result); err != nil {
		return nil, err
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}
	return &CompletionResponse{
		Content:    result.Response,
		StopReason: result.DoneReason,
		Usage: Usage{
			InputTokens:  result.PromptEvalCount,
			OutputTokens: result.EvalCount,
		},
		Model:    model,
		Duration: time.Since(start),
	}, nil
}

// buildPrompt flattens the conversation into a single prompt.
func buildPrompt(req CompletionRequest) string {
	var prompt strings.Builder
	for _, msg := range req.Messages {
		if msg.Role != RoleUser {
			prompt.WriteString(fmt.Sprintf("%s: ", msg.Role))
		}
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n\n")
	}
	return strings.TrimSuffix(prompt.String(), "\n\n")
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
