package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/blackmichael/postpilot/internal/domain"
)

const (
	// Platform is the platform tag this client serves.
	Platform = "twitter"

	defaultAPIURL = "https://api.twitter.com"

	// maxTweetLength is the platform's character limit. Longer content is
	// rejected as a permanent failure without a network call.
	maxTweetLength = 280
)

// Client is a minimal Twitter API v2 client implementing
// domain.Publisher. Failures are classified for the scheduler: rate
// limits, 5xx responses and transport errors are transient; other API
// rejections are permanent.
type Client struct {
	apiURL      string
	bearerToken string
	httpClient  *http.Client
}

// NewClient creates a new Twitter API client. If apiURL is empty, it
// defaults to the public API endpoint.
func NewClient(apiURL, bearerToken string) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		apiURL:      apiURL,
		bearerToken: bearerToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Publish posts content as a tweet and returns the tweet id.
func (c *Client) Publish(ctx context.Context, content string) (string, error) {
	if c.bearerToken == "" {
		return "", domain.Permanent("twitter credentials not configured", nil)
	}
	if utf8.RuneCountInString(content) > maxTweetLength {
		return "", domain.Permanent(fmt.Sprintf("content exceeds %d characters", maxTweetLength), nil)
	}

	var resp createTweetResponse
	if err := c.post(ctx, "/2/tweets", createTweetRequest{Text: content}, &resp); err != nil {
		return "", err
	}

	if resp.Data.ID == "" {
		return "", domain.Permanent("twitter response missing tweet id", nil)
	}
	return resp.Data.ID, nil
}

// VerifyCredentials checks that the configured token is valid by
// fetching the authenticated user. Intended as a startup probe.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/2/users/me", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("credential check failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Permanent("marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.Permanent("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Transient("send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Transient("read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.Transient(fmt.Sprintf("twitter API error (status %d): %s", resp.StatusCode, string(respBody)), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.Permanent(fmt.Sprintf("twitter API error (status %d): %s", resp.StatusCode, string(respBody)), nil)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return domain.Transient("unmarshal response", err)
		}
	}

	return nil
}

type createTweetRequest struct {
	Text string `json:"text"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}
