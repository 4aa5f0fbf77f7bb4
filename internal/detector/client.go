package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTransport reports a detector call that never produced a usable
// payload: connection failures, timeouts, and non-2xx responses all
// land here. Callers fail the analysis rather than guessing a verdict.
var ErrTransport = errors.New("detector transport failure")

// Client talks to the remote detection service that scores prompts.
// It returns raw response bytes; interpreting them is the normalizer's
// job, so detector upgrades that change the response shape do not
// require client changes.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a detector client for the service at baseURL. An
// empty apiKey sends no auth header.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze submits the prompt for scoring and returns the raw response
// body on any 2xx status.
func (c *Client) Analyze(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(analyzeRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal detector request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build detector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, truncate(raw, 200))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

type analyzeRequest struct {
	Prompt string `json:"prompt"`
}
