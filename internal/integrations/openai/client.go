package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whatsapp-agent/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	// messagePageSize bounds ListMessages to the newest page, which always
	// contains the reply produced by the run that just completed.
	messagePageSize = 20
)

type createMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type createRunRequest struct {
	AssistantID string `json:"assistant_id"`
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// messageListResponse is the minimal shape of GET /threads/{id}/messages.
type messageListResponse struct {
	Data []struct {
		ID      string `json:"id"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text *struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the Assistants API: threads, messages and runs.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	apiKey      string
	assistantID string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client that starts runs with the given assistant.
func NewClient(apiKey, assistantID string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	assistantID = strings.TrimSpace(assistantID)
	if assistantID == "" {
		return nil, errors.New("openai: assistant id must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		apiKey:      apiKey,
		assistantID: assistantID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// endpoint joins an API path onto the base URL, adding /v1 when the base
// does not already carry it.
func endpoint(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + path
}

// CreateThread opens a new conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out threadResponse
	if err := c.call(ctx, http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", fmt.Errorf("openai: create thread: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("openai: create thread: empty thread id")
	}
	return out.ID, nil
}

// PostMessage appends a message to the thread.
func (c *Client) PostMessage(ctx context.Context, threadID, role, text string) error {
	if threadID == "" {
		return errors.New("openai: post message: thread id must not be empty")
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.call(ctx, http.MethodPost, path, createMessageRequest{Role: role, Content: text}, nil); err != nil {
		return fmt.Errorf("openai: post message: %w", err)
	}
	return nil
}

// StartRun starts the configured assistant on the thread.
func (c *Client) StartRun(ctx context.Context, threadID string) (domain.Run, error) {
	if threadID == "" {
		return domain.Run{}, errors.New("openai: start run: thread id must not be empty")
	}
	var out runResponse
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	if err := c.call(ctx, http.MethodPost, path, createRunRequest{AssistantID: c.assistantID}, &out); err != nil {
		return domain.Run{}, fmt.Errorf("openai: start run: %w", err)
	}
	if out.ID == "" {
		return domain.Run{}, errors.New("openai: start run: empty run id")
	}
	return domain.Run{ID: out.ID, Status: domain.RunStatus(out.Status)}, nil
}

// GetRunStatus retrieves the current status of a run.
func (c *Client) GetRunStatus(ctx context.Context, threadID, runID string) (domain.RunStatus, error) {
	var out runResponse
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", fmt.Errorf("openai: get run: %w", err)
	}
	if out.Status == "" {
		return "", errors.New("openai: get run: empty status")
	}
	return domain.RunStatus(out.Status), nil
}

// ListMessages returns the newest page of thread messages in chronological order.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]domain.ThreadMessage, error) {
	var out messageListResponse
	path := fmt.Sprintf("/threads/%s/messages?order=desc&limit=%d", url.PathEscape(threadID), messagePageSize)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("openai: list messages: %w", err)
	}

	msgs := make([]domain.ThreadMessage, 0, len(out.Data))
	for _, m := range out.Data {
		tm := domain.ThreadMessage{ID: m.ID, Role: m.Role}
		for _, part := range m.Content {
			if part.Type != "text" || part.Text == nil {
				continue
			}
			tm.Text = append(tm.Text, part.Text.Value)
		}
		msgs = append(msgs, tm)
	}
	// Pages come newest first; callers expect chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	u := endpoint(c.baseURL, path)

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	raw, err := c.doJSONRequest(req, u)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
