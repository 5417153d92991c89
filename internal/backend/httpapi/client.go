// Package httpapi is the JSON-over-HTTP client shared by the hub and registry
// backends.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aweris/imgsync"
	"github.com/aweris/imgsync/internal/retry"
)

// Client talks to a JSON API rooted at a base URL.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	maxAttempts int
}

// Option configures the Client.
type Option func(*Client)

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMaxAttempts sets how often a GET is tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the absolute URL of path with an optional query.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get fetches path and decodes the JSON response into target. Network and
// server failures are retried.
func (c *Client) Get(ctx context.Context, path string, query url.Values, target any) error {
	_, err := retry.Do(ctx, c.maxAttempts, retryable, func() (struct{}, error) {
		return struct{}{}, c.Do(ctx, http.MethodGet, path, query, nil, "", target)
	})
	return err
}

// Do sends a single request. target may be nil to discard the body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", imgsync.ErrNetwork, err)
	}
	return parseResponse(resp, target)
}

// parseResponse maps the status onto the imgsync error sentinels and
// decodes a successful body into target.
func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		var errResp struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil {
			if errResp.Error != "" {
				msg = errResp.Error
			} else if errResp.Detail != "" {
				msg = errResp.Detail
			}
		}

		var sentinel error
		switch {
		case resp.StatusCode == http.StatusNotFound:
			sentinel = imgsync.ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			sentinel = imgsync.ErrAuth
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			sentinel = imgsync.ErrNetwork
		default:
			return fmt.Errorf("%s %s: %s: %s", resp.Request.Method, resp.Request.URL.Redacted(), resp.Status, msg)
		}
		return fmt.Errorf("%w: %s %s: %s: %s", sentinel, resp.Request.Method, resp.Request.URL.Redacted(), resp.Status, msg)
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, imgsync.ErrNetwork)
}
