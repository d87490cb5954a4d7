package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatConfig describes a provider speaking the OpenAI REST dialect.
type OpenAICompatConfig struct {
	Name    string
	BaseURL string // including the version segment, e.g. https://api.openai.com/v1
	APIKey  string
	EnvVar  string // reported when APIKey is empty

	// Keep filters the listed model ids; nil keeps everything.
	Keep func(id string) bool
	// Descending sorts the model list newest-name first.
	Descending bool
	// MaxTokensField is the request field carrying the token limit.
	MaxTokensField string
}

var groqExcluded = []string{"whisper", "guard", "compound", "orpheus", "safeguard"}

var openAICompatPresets = map[string]OpenAICompatConfig{
	"openai": {
		Name:    "openai",
		BaseURL: "https://api.openai.com/v1",
		EnvVar:  "OPENAI_API_KEY",
		Keep: func(id string) bool {
			return strings.Contains(strings.ToLower(id), "gpt")
		},
		Descending:     true,
		MaxTokensField: "max_completion_tokens",
	},
	"fireworks": {
		Name:           "fireworks",
		BaseURL:        "https://api.fireworks.ai/inference/v1",
		EnvVar:         "FIREWORKS_API_KEY",
		MaxTokensField: "max_tokens",
	},
	"groq": {
		Name:    "groq",
		BaseURL: "https://api.groq.com/openai/v1",
		EnvVar:  "GROQ_API_KEY",
		// Audio, safety and TTS models cannot serve chat.
		Keep: func(id string) bool {
			lower := strings.ToLower(id)
			for _, p := range groqExcluded {
				if strings.Contains(lower, p) {
					return false
				}
			}
			return true
		},
		MaxTokensField: "max_tokens",
	},
}

// OpenAICompatClient serves openai, fireworks and groq.
type OpenAICompatClient struct {
	cfg    OpenAICompatConfig
	client *http.Client
}

// NewOpenAICompatClient creates a client for an OpenAI-style provider.
func NewOpenAICompatClient(cfg OpenAICompatConfig, hc *http.Client) *OpenAICompatClient {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.MaxTokensField == "" {
		cfg.MaxTokensField = "max_tokens"
	}
	if hc == nil {
		hc = NewHTTPClient(nil)
	}
	return &OpenAICompatClient{cfg: cfg, client: hc}
}

// Name returns the provider name.
func (c *OpenAICompatClient) Name() string { return c.cfg.Name }

func (c *OpenAICompatClient) headers() (map[string]string, error) {
	if c.cfg.APIKey == "" {
		return nil, &MissingKeyError{Provider: c.cfg.Name, EnvVar: c.cfg.EnvVar}
	}
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}, nil
}

// ListModels returns the provider's models filtered and sorted for display.
func (c *OpenAICompatClient) ListModels(ctx context.Context) ([]string, error) {
	headers, err := c.headers()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, keyedListTimeout)
	defer cancel()

	var list modelList
	if err := doJSON(ctx, c.client, c.cfg.Name, http.MethodGet, c.cfg.BaseURL+"/models", headers, nil, &list); err != nil {
		return nil, err
	}
	return sortModels(list.ids(c.cfg.Keep), c.cfg.Descending), nil
}

// Complete sends a chat completion request.
func (c *OpenAICompatClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	headers, err := c.headers()
	if err != nil {
		return nil, err
	}
	start := time.Now()

	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	body := map[string]any{
		"model":    req.Model,
		"messages": msgs,
	}
	if req.MaxTokens > 0 {
		body[c.cfg.MaxTokensField] = req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	var result chatCompletionResponse
	if err := doJSON(ctx, c.client, c.cfg.Name, http.MethodPost, c.cfg.BaseURL+"/chat/completions", headers, body, &result); err != nil {
		return nil, err
	}

	resp := &CompletionResponse{
		Usage: Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
		Model:    result.Model,
		Duration: time.Since(start),
	}
	if len(result.Choices) > 0 {
		resp.Content = result.Choices[0].Message.Content
		resp.StopReason = result.Choices[0].FinishReason
	}
	return resp, nil
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
