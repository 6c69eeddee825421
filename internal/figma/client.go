// Package figma is a minimal client for the parts of the Figma REST API
// the watchers consume: file metadata, version history, and comments.
package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Option func(*Client)

type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	userAgent  string
}

func NewClient(baseURL, token string, options ...Option) (*Client, error) {
	parsedBaseURL, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse figma base url: %w", err)
	}
	if parsedBaseURL.Scheme == "" || parsedBaseURL.Host == "" {
		return nil, fmt.Errorf("figma base url must include scheme and host")
	}

	client := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    parsedBaseURL,
		token:      strings.TrimSpace(token),
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(client *Client) {
		client.userAgent = strings.TrimSpace(userAgent)
	}
}

// GetFile fetches a file's metadata. A response without a version stamp is
// treated as a failed fetch, not as an empty value.
func (c *Client) GetFile(ctx context.Context, fileKey string) (*File, error) {
	var file File
	if err := c.get(ctx, fmt.Sprintf("/v1/files/%s", url.PathEscape(fileKey)), &file); err != nil {
		return nil, err
	}
	if strings.TrimSpace(file.Version) == "" {
		return nil, fmt.Errorf("figma file response missing version")
	}
	return &file, nil
}

// FileVersion fetches the current version stamp of a file.
func (c *Client) FileVersion(ctx context.Context, fileKey string) (string, error) {
	file, err := c.GetFile(ctx, fileKey)
	if err != nil {
		return "", err
	}
	return file.Version, nil
}

// FileVersions fetches the version history of a file, newest first.
func (c *Client) FileVersions(ctx context.Context, fileKey string) ([]Version, error) {
	var payload struct {
		Versions []Version `json:"versions"`
	}
	endpoint := fmt.Sprintf("/v1/files/%s/versions", url.PathEscape(fileKey))
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Versions, nil
}

// FileComments fetches every comment on a file. An empty list is a valid
// result, distinct from a fetch failure.
func (c *Client) FileComments(ctx context.Context, fileKey string) ([]Comment, error) {
	var payload struct {
		Comments []Comment `json:"comments"`
	}
	endpoint := fmt.Sprintf("/v1/files/%s/comments", url.PathEscape(fileKey))
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Comments, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	requestURL, err := c.resolveURL(endpoint)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("X-Figma-Token", c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("figma api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read figma response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode figma response: %w", err)
	}
	return nil
}

func (c *Client) resolveURL(endpoint string) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", fmt.Errorf("endpoint is required")
	}

	relative, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}

	return c.baseURL.ResolveReference(relative).String(), nil
}

// errorMessage extracts the "err" field Figma error bodies carry, falling
// back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Err string `json:"err"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Err) != "" {
		return strings.TrimSpace(payload.Err)
	}
	return strings.TrimSpace(string(body))
}
