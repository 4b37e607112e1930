package zapi

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

	"golang.org/x/time/rate"

	"whatsapp-agent/internal/domain"
)

const defaultBaseURL = "https://api.z-api.io"

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// HTTPStatusError captures non-2xx gateway responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("zapi: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client sends outbound WhatsApp messages through a Z-API instance.
type Client struct {
	baseURL     string
	instanceID  string
	token       string
	clientToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
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

// WithRateLimit caps outbound sends per second across all recipients.
// A non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// New creates a Client for one Z-API instance.
func New(instanceID, token, clientToken string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(instanceID) == "" {
		return nil, errors.New("zapi: instance id must not be empty")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("zapi: token must not be empty")
	}
	if strings.TrimSpace(clientToken) == "" {
		return nil, errors.New("zapi: client token must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		instanceID:  strings.TrimSpace(instanceID),
		token:       strings.TrimSpace(token),
		clientToken: strings.TrimSpace(clientToken),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) sendTextURL() string {
	base := strings.TrimRight(c.baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return fmt.Sprintf("%s/instances/%s/token/%s/send-text", base, url.PathEscape(c.instanceID), url.PathEscape(c.token))
}

// SendText delivers a plain-text message to phone.
func (c *Client) SendText(ctx context.Context, phone, text string) (domain.DeliveryReceipt, error) {
	if phone == "" {
		return domain.DeliveryReceipt{}, errors.New("zapi: phone must not be empty")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.DeliveryReceipt{}, fmt.Errorf("zapi: rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(sendTextRequest{Phone: phone, Message: text})
	if err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("zapi: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendTextURL(), bytes.NewReader(body))
	if err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("zapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Token", c.clientToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("zapi: send text: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return domain.DeliveryReceipt{}, &HTTPStatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}

	var out domain.DeliveryReceipt
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&out); err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("zapi: decode response: %w", err)
	}
	return out, nil
}
