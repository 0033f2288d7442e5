package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/recruiter/internal/interview"
)

// Request is the body posted to the feedback endpoint.
type Request struct {
	Transcript     string `json:"transcript"`
	JobRole        string `json:"jobRole"`
	JobDescription string `json:"jobDescription"`
}

// Client calls the feedback-generation endpoint.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Generate submits req and returns the raw content text of the response.
// Transport and HTTP failures wrap interview.ErrEndpoint; a response without
// a textual content/Content field wraps interview.ErrMissingContent.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", interview.ErrEndpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", interview.ErrEndpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", interview.ErrEndpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("feedback endpoint returned an error", "status", resp.StatusCode, "body", string(respBody))
		return "", fmt.Errorf("%w: status %d", interview.ErrEndpoint, resp.StatusCode)
	}

	content, ok := extractContent(respBody)
	if !ok {
		c.logger.Error("feedback endpoint did not return valid content", "body", string(respBody))
		return "", interview.ErrMissingContent
	}
	return content, nil
}

// extractContent reads the content field, accepting either casing. An empty
// string counts as missing.
func extractContent(body []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", false
	}
	for _, key := range []string{"content", "Content"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, true
		}
	}
	return "", false
}
