package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func jsonHandler(t *testing.T, check func(r *http.Request), body any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}
}

// --- Registry tests ---

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("test-provider", &MockClient{ProviderName: "test-provider"})

	client, err := reg.Get("test-provider")
	require.NoError(t, err)
	assert.Equal(t, "test-provider", client.Name())

	_, err = reg.Get("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestRegistryProvidersOrder(t *testing.T) {
	reg := NewRegistryFromSettings(config.Defaults(), http.DefaultClient, silentLog())
	assert.Equal(t, []string{"ollama", "openai", "anthropic", "fireworks", "groq"}, reg.Providers())

	reg.Register("zeta", &MockClient{ProviderName: "zeta"})
	reg.Register("alpha", &MockClient{ProviderName: "alpha"})
	assert.Equal(t, []string{"ollama", "openai", "anthropic", "fireworks", "groq", "alpha", "zeta"}, reg.Providers())
}

func TestRegistryFromSettingsUsesOverrides(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, func(r *http.Request) {
		assert.Equal(t, "Bearer from-settings", r.Header.Get("Authorization"))
	}, map[string]any{"data": []map[string]string{{"id": "llama-3.1-8b-instant"}}}))
	defer srv.Close()

	t.Setenv("GROQ_API_KEY", "")
	s := config.Defaults()
	s.Providers = map[string]config.ProviderEntry{
		"groq": {BaseURL: srv.URL, APIKey: "from-settings"},
	}
	reg := NewRegistryFromSettings(s, srv.Client(), silentLog())
	client, err := reg.Get("groq")
	require.NoError(t, err)

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama-3.1-8b-instant"}, models)
}

// --- Provider listing ---

func TestOllamaListModels(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, func(r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
	}, map[string]any{"models": []map[string]string{{"name": "llama3:latest"}, {"name": "mistral:7b"}}}))
	defer srv.Close()

	models, err := NewOllamaClient(srv.URL+"/", srv.Client()).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "mistral:7b"}, models)
}

func TestOpenAICompatListModelsFiltersAndSorts(t *testing.T) {
	ids := []map[string]string{
		{"id": "whisper-large-v3"},
		{"id": "gpt-4o-mini"},
		{"id": "llama-guard-4-12b"},
		{"id": "gpt-4.1"},
		{"id": "dall-e-3"},
		{"id": "groq/compound"},
		{"id": "canopylabs/orpheus-v1"},
		{"id": "openai/gpt-oss-20b"},
		{"id": "Llama-3.3-70b"},
	}
	srv := httptest.NewServer(jsonHandler(t, func(r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
	}, map[string]any{"data": ids}))
	defer srv.Close()

	tests := []struct {
		provider string
		want     []string
	}{
		{"openai", []string{"openai/gpt-oss-20b", "gpt-4o-mini", "gpt-4.1"}},
		{"groq", []string{"Llama-3.3-70b", "dall-e-3", "gpt-4.1", "gpt-4o-mini", "openai/gpt-oss-20b"}},
		{"fireworks", []string{"Llama-3.3-70b", "canopylabs/orpheus-v1", "dall-e-3", "gpt-4.1", "gpt-4o-mini", "groq/compound", "llama-guard-4-12b", "openai/gpt-oss-20b", "whisper-large-v3"}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := openAICompatPresets[tt.provider]
			cfg.BaseURL = srv.URL
			cfg.APIKey = "k"
			models, err := NewOpenAICompatClient(cfg, srv.Client()).ListModels(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, models)
		})
	}
}

func TestAnthropicListModels(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, func(r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
	}, map[string]any{"data": []map[string]string{{"id": "claude-3-5-haiku-20241022"}, {"id": "claude-sonnet-4-20250514"}}}))
	defer srv.Close()

	models, err := NewAnthropicClient("secret", srv.URL, srv.Client()).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"}, models)
}

func TestKeyedProvidersRequireKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	clients := []Client{
		NewAnthropicClient("", srv.URL, srv.Client()),
		NewOpenAICompatClient(openAICompatPresets["groq"], srv.Client()),
	}
	for _, c := range clients {
		_, err := c.ListModels(context.Background())
		var missing *MissingKeyError
		require.ErrorAs(t, err, &missing, c.Name())
		assert.Equal(t, c.Name(), missing.Provider)

		_, err = c.Complete(context.Background(), CompletionRequest{Model: "m"})
		require.ErrorAs(t, err, &missing)
	}
	assert.Equal(t, "GROQ_API_KEY not set", (&MissingKeyError{Provider: "groq", EnvVar: "GROQ_API_KEY"}).Error())
	assert.Zero(t, hits.Load(), "no request should be sent without a key")
}

// --- Completions ---

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "llama3", body["model"])
		assert.Equal(t, "hello", body["prompt"])
		assert.Equal(t, false, body["stream"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "llama3", "response": "hi there", "done": true,
			"prompt_eval_count": 5, "eval_count": 2,
		})
	}))
	defer srv.Close()

	resp, err := NewOllamaClient(srv.URL, srv.Client()).Complete(context.Background(), CompletionRequest{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 7, resp.Usage.Total())
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "be brief", body["system"])
		assert.EqualValues(t, 1024, body["max_tokens"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":       "claude-sonnet-4",
			"content":     []map[string]string{{"type": "text", "text": "pong"}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 1},
		})
	}))
	defer srv.Close()

	resp, err := NewAnthropicClient("k", srv.URL, srv.Client()).Complete(context.Background(), CompletionRequest{
		Model:    "claude-sonnet-4",
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 10, OutputTokens: 1}, resp.Usage)
}

func TestOpenAICompatCompleteAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["model"] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
			return
		}
		msgs := body["messages"].([]any)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.EqualValues(t, 16, body["max_completion_tokens"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "pong"}, "finish_reason": "stop"}},
			"usage":   map[string]int{"prompt_tokens": 8, "completion_tokens": 1},
		})
	}))
	defer srv.Close()

	cfg := openAICompatPresets["openai"]
	cfg.BaseURL = srv.URL
	cfg.APIKey = "k"
	client := NewOpenAICompatClient(cfg, srv.Client())

	resp, err := client.Complete(context.Background(), CompletionRequest{
		Model:     "gpt-4o-mini",
		System:    "sys",
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 16,
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, 9, resp.Usage.Total())

	_, err = client.Complete(context.Background(), CompletionRequest{Model: "missing"})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusNotFound, perr.Code)
	assert.Equal(t, "openai: 404 model not found", perr.Error())
}

func TestPing(t *testing.T) {
	mock := &MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
			assert.Equal(t, "m1", req.Model)
			return &CompletionResponse{Content: "pong", Usage: Usage{InputTokens: 3, OutputTokens: 1}}, nil
		},
	}
	res, err := Ping(context.Background(), mock, "m1")
	require.NoError(t, err)
	assert.Equal(t, "mock", res.Provider)
	assert.Equal(t, "pong", res.Reply)
	assert.Equal(t, 4, res.Usage.Total())

	_, err = Ping(context.Background(), mock, "")
	assert.Error(t, err)

	boom := errors.New("boom")
	mock.CompleteFunc = func(context.Context, CompletionRequest) (*CompletionResponse, error) { return nil, boom }
	_, err = Ping(context.Background(), mock, "m1")
	assert.ErrorIs(t, err, boom)
}

// --- Transport ---

func TestHTTPClientRetriesButNotOn500(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flaky":
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{}`))
		case "/broken":
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"kaput"}`))
		}
	}))
	defer srv.Close()

	hc := NewHTTPClient(silentLog())

	require.NoError(t, doJSON(context.Background(), hc, "test", http.MethodGet, srv.URL+"/flaky", nil, nil, nil))
	assert.EqualValues(t, 2, calls.Load())

	calls.Store(0)
	err := doJSON(context.Background(), hc, "test", http.MethodGet, srv.URL+"/broken", nil, nil, nil)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "kaput", perr.Message)
	assert.EqualValues(t, 1, calls.Load())
}
