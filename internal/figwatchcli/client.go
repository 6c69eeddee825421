// Package figwatchcli implements the HTTP client behind the figwatch
// command line tool.
package figwatchcli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

const maxClientResponseBodyBytes = 1 << 20

type RequestError struct {
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "request failed"
	}
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("request failed (%d)", e.StatusCode)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Detail)
}

func (e *RequestError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type ResponseDecodeError struct {
	StatusCode int
	Detail     string
}

func (e *ResponseDecodeError) Error() string {
	if e == nil {
		return "invalid response"
	}
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("invalid response (%d)", e.StatusCode)
	}
	return fmt.Sprintf("invalid response (%d): %s", e.StatusCode, e.Detail)
}

func (e *ResponseDecodeError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// HTTPStatusCode returns the HTTP status carried by typed client errors.
func HTTPStatusCode(err error) (int, bool) {
	var statusErr interface {
		HTTPStatusCode() int
	}
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	status := statusErr.HTTPStatusCode()
	if status <= 0 {
		return 0, false
	}
	return status, true
}

func NewClient(cfg Config) *Client {
	return &Client{
		BaseURL: normalizeAPIBaseURL(cfg.APIBaseURL),
		Token:   strings.TrimSpace(cfg.Token),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	baseURL := normalizeAPIBaseURL(c.BaseURL)
	if baseURL == "" {
		return nil, errors.New("missing API base URL")
	}
	endpoint := baseURL + path
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.Token))
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, maxClientResponseBodyBytes))
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode >= 400 {
		return &RequestError{
			StatusCode: resp.StatusCode,
			Detail:     summarizeResponseBody(resp.Header.Get("Content-Type"), payload),
		}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return io.EOF
	}
	if err := json.Unmarshal(payload, out); err != nil {
		detail := classifyDecodeErrorDetail(resp.Header.Get("Content-Type"), payload)
		if detail == "" {
			detail = fmt.Sprintf("invalid JSON response: %v", err)
		}
		return &ResponseDecodeError{
			StatusCode: resp.StatusCode,
			Detail:     detail,
		}
	}
	return nil
}

func summarizeResponseBody(contentType string, payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return ""
	}
	if isLikelyHTMLResponse(contentType, trimmed) {
		return "html response body omitted"
	}
	if msg, ok := extractJSONErrorSummary(payload, contentType); ok {
		return msg
	}
	return truncateResponseText(trimmed, 200)
}

func classifyDecodeErrorDetail(contentType string, payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return "empty response body"
	}
	if isLikelyHTMLResponse(contentType, trimmed) {
		return "expected JSON response but received HTML"
	}
	if !looksLikeJSONContent(contentType, trimmed) {
		return "expected JSON response but received non-JSON body"
	}
	return ""
}

func extractJSONErrorSummary(payload []byte, contentType string) (string, bool) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || !looksLikeJSONContent(contentType, trimmed) {
		return "", false
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", false
	}

	for _, key := range []string{"error", "message", "detail"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		switch value := raw.(type) {
		case string:
			value = strings.TrimSpace(value)
			if value != "" {
				return truncateResponseText(value, 200), true
			}
		case map[string]any:
			if nested, ok := value["message"].(string); ok && strings.TrimSpace(nested) != "" {
				return truncateResponseText(strings.TrimSpace(nested), 200), true
			}
		}
	}

	return "", false
}

func looksLikeJSONContent(contentType, body string) bool {
	if isJSONContentType(contentType) {
		return true
	}
	if body == "" {
		return false
	}
	return strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[")
}

func isJSONContentType(contentType string) bool {
	value := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if value == "" {
		return false
	}
	return value == "application/json" || value == "text/json" || strings.HasSuffix(value, "+json")
}

func isLikelyHTMLResponse(contentType, body string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml") {
		return true
	}
	lowerBody := strings.ToLower(strings.TrimSpace(body))
	return strings.HasPrefix(lowerBody, "<!doctype html") || strings.HasPrefix(lowerBody, "<html")
}

func truncateResponseText(value string, max int) string {
	collapsed := strings.Join(strings.Fields(value), " ")
	if len(collapsed) <= max {
		return collapsed
	}
	if max <= 3 {
		return collapsed[:max]
	}
	return collapsed[:max-3] + "..."
}

func normalizeAPIBaseURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}

	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		trimmed := strings.TrimRight(value, "/")
		return strings.TrimSuffix(trimmed, "/api")
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if strings.HasSuffix(parsed.Path, "/api") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/api")
	}
	return parsed.String()
}

// HealthInfo mirrors the daemon's GET /health payload.
type HealthInfo struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type PollTotals struct {
	Cycles              int64 `json:"cycles"`
	VersionChanges      int64 `json:"version_changes"`
	NewComments         int64 `json:"new_comments"`
	JobsDispatched      int64 `json:"jobs_dispatched"`
	DeliveryFailures    int64 `json:"delivery_failures"`
	MetadataFailures    int64 `json:"metadata_failures"`
	TotalDurationMillis int64 `json:"total_duration_millis"`
}

type CycleReport struct {
	StartedAt        time.Time `json:"started_at"`
	DurationMillis   int64     `json:"duration_millis"`
	VersionChanges   int       `json:"version_changes"`
	NewComments      int       `json:"new_comments"`
	JobsDispatched   int       `json:"jobs_dispatched"`
	DeliveryFailures int       `json:"delivery_failures"`
	MetadataFailures int       `json:"metadata_failures"`
}

type PollSnapshot struct {
	Totals      PollTotals   `json:"totals"`
	LastCycle   *CycleReport `json:"last_cycle,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type WatchOverview struct {
	TrackedVersionFiles int `json:"tracked_version_files"`
	TrackedCommentFiles int `json:"tracked_comment_files"`
	UpdateSubscribers   int `json:"update_subscribers"`
	CommentSubscribers  int `json:"comment_subscribers"`
}

// StatusInfo mirrors the daemon's GET /api/status payload.
type StatusInfo struct {
	Status string        `json:"status"`
	Uptime string        `json:"uptime"`
	Poll   PollSnapshot  `json:"poll"`
	Watch  WatchOverview `json:"watch"`
}

type Subscription struct {
	FileKey      string `json:"file_key"`
	FileName     string `json:"file_name,omitempty"`
	Version      string `json:"version,omitempty"`
	Updates      bool   `json:"updates"`
	Comments     bool   `json:"comments"`
	SeenComments int    `json:"seen_comments,omitempty"`
}

type subscriptionListResponse struct {
	Subscriber string         `json:"subscriber"`
	Items      []Subscription `json:"items"`
	Total      int            `json:"total"`
}

// SubscribeResult covers both subscription classes; comment-only
// subscriptions leave Version and AutoComments at their zero values.
type SubscribeResult struct {
	FileKey           string `json:"file_key"`
	FileName          string `json:"file_name"`
	Version           string `json:"version,omitempty"`
	AlreadySubscribed bool   `json:"already_subscribed"`
	AutoComments      bool   `json:"auto_comments"`
	SeenComments      int    `json:"seen_comments,omitempty"`
}

type deleteSubscriptionResponse struct {
	Removed bool `json:"removed"`
}

type FileStatus struct {
	FileKey            string `json:"file_key"`
	Version            string `json:"version,omitempty"`
	TrackedVersions    bool   `json:"tracked_versions"`
	TrackedComments    bool   `json:"tracked_comments"`
	SeenComments       int    `json:"seen_comments,omitempty"`
	UpdateSubscribers  int    `json:"update_subscribers"`
	CommentSubscribers int    `json:"comment_subscribers"`
}

type fileListResponse struct {
	Items []FileStatus `json:"items"`
	Total int          `json:"total"`
}

type resetCommentsResponse struct {
	FileKey string `json:"file_key"`
	Reset   bool   `json:"reset"`
}

// CycleResult mirrors the daemon's POST /api/poll payload.
type CycleResult struct {
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	VersionChanges   int       `json:"version_changes"`
	NewComments      int       `json:"new_comments"`
	JobsDispatched   int       `json:"jobs_dispatched"`
	DeliveryFailures int       `json:"delivery_failures"`
	MetadataFailures int       `json:"metadata_failures"`
}

func (c *Client) Health() (HealthInfo, error) {
	req, err := c.newRequest(http.MethodGet, "/health", nil)
	if err != nil {
		return HealthInfo{}, err
	}
	var info HealthInfo
	if err := c.do(req, &info); err != nil {
		return HealthInfo{}, err
	}
	return info, nil
}

func (c *Client) Status() (StatusInfo, error) {
	req, err := c.newRequest(http.MethodGet, "/api/status", nil)
	if err != nil {
		return StatusInfo{}, err
	}
	var info StatusInfo
	if err := c.do(req, &info); err != nil {
		return StatusInfo{}, err
	}
	return info, nil
}

func (c *Client) ListSubscriptions(subscriber string) ([]Subscription, error) {
	subscriber = strings.TrimSpace(subscriber)
	if subscriber == "" {
		return nil, errors.New("subscriber is required")
	}
	req, err := c.newRequest(http.MethodGet, "/api/subscriptions?subscriber="+url.QueryEscape(subscriber), nil)
	if err != nil {
		return nil, err
	}
	var resp subscriptionListResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Subscribe starts watching a file. The file argument accepts a bare key
// or a Figma URL; class is "updates", "comments", or empty for the
// server default.
func (c *Client) Subscribe(subscriber, file, class string) (SubscribeResult, error) {
	subscriber = strings.TrimSpace(subscriber)
	if subscriber == "" {
		return SubscribeResult{}, errors.New("subscriber is required")
	}
	file = strings.TrimSpace(file)
	if file == "" {
		return SubscribeResult{}, errors.New("a file key or Figma URL is required")
	}
	payload, err := json.Marshal(map[string]string{
		"subscriber": subscriber,
		"file":       file,
		"class":      strings.TrimSpace(class),
	})
	if err != nil {
		return SubscribeResult{}, err
	}
	req, err := c.newRequest(http.MethodPost, "/api/subscriptions", bytes.NewReader(payload))
	if err != nil {
		return SubscribeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var result SubscribeResult
	if err := c.do(req, &result); err != nil {
		return SubscribeResult{}, err
	}
	return result, nil
}

func (c *Client) Unsubscribe(subscriber, file, class string) (bool, error) {
	subscriber = strings.TrimSpace(subscriber)
	file = strings.TrimSpace(file)
	if subscriber == "" || file == "" {
		return false, errors.New("subscriber and file are required")
	}
	query := url.Values{}
	query.Set("subscriber", subscriber)
	query.Set("file", file)
	if class = strings.TrimSpace(class); class != "" {
		query.Set("class", class)
	}
	req, err := c.newRequest(http.MethodDelete, "/api/subscriptions?"+query.Encode(), nil)
	if err != nil {
		return false, err
	}
	var resp deleteSubscriptionResponse
	if err := c.do(req, &resp); err != nil {
		return false, err
	}
	return resp.Removed, nil
}

func (c *Client) ListFiles() ([]FileStatus, error) {
	req, err := c.newRequest(http.MethodGet, "/api/files", nil)
	if err != nil {
		return nil, err
	}
	var resp fileListResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ResetComments clears the seen-comment baseline for a file. It reports
// false without an error when the file is not comment-tracked.
func (c *Client) ResetComments(fileKey string) (bool, error) {
	fileKey = strings.TrimSpace(fileKey)
	if fileKey == "" {
		return false, errors.New("file key is required")
	}
	req, err := c.newRequest(http.MethodPost, "/api/files/"+url.PathEscape(fileKey)+"/reset-comments", nil)
	if err != nil {
		return false, err
	}
	var resp resetCommentsResponse
	if err := c.do(req, &resp); err != nil {
		if status, ok := HTTPStatusCode(err); ok && status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return resp.Reset, nil
}

func (c *Client) TriggerPoll() (CycleResult, error) {
	req, err := c.newRequest(http.MethodPost, "/api/poll", nil)
	if err != nil {
		return CycleResult{}, err
	}
	var result CycleResult
	if err := c.do(req, &result); err != nil {
		return CycleResult{}, err
	}
	return result, nil
}
