package llm

import (
	"context"
	"errors"
	"time"
)

// PingResult reports a successful connection test.
type PingResult struct {
	Provider string
	Model    string
	Latency  time.Duration
	Usage    Usage
	Reply    string
}

// Ping sends a minimal completion to check that the provider is reachable,
// the key is accepted and the model exists.
func Ping(ctx context.Context, client Client, model string) (*PingResult, error) {
	if client == nil {
		return nil, errors.New("no provider selected")
	}
	if model == "" {
		return nil, errors.New("no model selected")
	}
	start := time.Now()
	resp, err := client.Complete(ctx, CompletionRequest{
		Model:     model,
		Messages:  []Message{{Role: RoleUser, Content: "Reply with the single word: pong"}},
		MaxTokens: 16,
	})
	if err != nil {
		return nil, err
	}
	return &PingResult{
		Provider: client.Name(),
		Model:    model,
		Latency:  time.Since(start),
		Usage:    resp.Usage,
		Reply:    resp.Content,
	}, nil
}
