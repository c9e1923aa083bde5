package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client accepts a batch of feature snapshots and returns one result per
// element within the call deadline. Implementations must preserve request
// order.
type Client interface {
	AnalyzeBatch(ctx context.Context, reqs []Request) ([]Result, error)
}

// HTTPClient calls the external analysis service over HTTP+JSON.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates an analysis service client. Returns nil if the
// endpoint is empty (external analysis disabled).
func NewHTTPClient(endpoint, apiKey string, timeout time.Duration) *HTTPClient {
	if endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type batchRequest struct {
	Requests []Request `json:"requests"`
}

type batchResponse struct {
	Results []Result `json:"results"`
}

// AnalyzeBatch posts the batch and decodes one result per request.
func (c *HTTPClient) AnalyzeBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	body, err := json.Marshal(batchRequest{Requests: reqs})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analysis call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service error %d: %s", resp.StatusCode, string(respBody))
	}

	var out batchResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out.Results) != len(reqs) {
		return nil, fmt.Errorf("result count mismatch: sent %d, got %d", len(reqs), len(out.Results))
	}

	slog.Debug("analysis batch completed", "size", len(reqs))
	return out.Results, nil
}
