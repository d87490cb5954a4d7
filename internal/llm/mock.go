package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName   string
	Models         []string
	CompleteFunc   func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	ListModelsFunc func(ctx context.Context) ([]string, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response", Model: req.Model}, nil
}

func (m *MockClient) ListModels(ctx context.Context) ([]string, error) {
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return m.Models, nil
}
