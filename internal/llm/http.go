package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// postJSON sends body as JSON and decodes a 200 reply into out. Every failure
// is reported as a *ProviderError.
func postJSON(ctx context.Context, client *http.Client, provider, op, url string, headers map[string]string, body, out any) error {
	fail := func(status int, err error) error {
		return &ProviderError{Provider: provider, Op: op, StatusCode: status, Err: err}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fail(0, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fail(resp.StatusCode, fmt.Errorf("API error: %s", bytes.TrimSpace(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
