package trend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Fetcher asks the external search service for trend candidates.
type Fetcher interface {
	FetchTrends(ctx context.Context, prompt string) (string, error)
}

// Client calls a Perplexity-style chat completions endpoint.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

// NewClient creates an upstream search client.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	if model == "" {
		model = "sonar"
	}
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}
}

// FetchTrends sends the prompt and returns the raw reply text. The reply is
// a single text blob with no guarantee of well-formed JSON; see Extract.
func (c *Client) FetchTrends(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("upstream status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upstream response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("upstream: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

// isTimeout reports whether err is a timeout-class transport failure, the
// only class worth retrying.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
