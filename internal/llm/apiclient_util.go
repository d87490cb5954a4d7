package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// maxResponseBytes caps how much of a provider response is buffered.
const maxResponseBytes = 8 << 20

// doJSON sends body (when non-nil) as JSON and decodes a 200 response into
// out. Non-200 responses become a *ProviderError carrying the provider's
// own error message when it sent one.
func doJSON(ctx context.Context, hc *http.Client, provider, method, url string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ProviderError{Provider: provider, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &ProviderError{
			Provider: provider,
			Message:  errorMessage(respBody, resp.Status),
			Code:     resp.StatusCode,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProviderError{Provider: provider, Message: "failed to parse response", Err: err}
	}
	return nil
}

// errorMessage extracts a readable message from an error response body.
// Providers use either {"error":{"message":...}} or {"error":"..."}.
func errorMessage(body []byte, status string) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		return text
	}
	return status
}

// modelList is an OpenAI-style {"data":[{"id":...}]} list.
type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (l modelList) ids(keep func(string) bool) []string {
	out := make([]string, 0, len(l.Data))
	for _, m := range l.Data {
		if m.ID == "" || (keep != nil && !keep(m.ID)) {
			continue
		}
		out = append(out, m.ID)
	}
	return out
}

func sortModels(ids []string, descending bool) []string {
	if descending {
		sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	} else {
		sort.Strings(ids)
	}
	return ids
}
