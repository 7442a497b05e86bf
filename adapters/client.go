// Package adapters holds the shared HTTP plumbing for backend facades.
// Each backend gets its own subpackage; all of them route requests through
// Client so auth injection, timeouts, and the single transport retry are
// uniform.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opsmind/opsmind/internal/metrics"
)

const (
	DefaultQueryTimeout  = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// StatusError reports a non-2xx backend response. 4xx responses are never
// retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

type Client struct {
	backend    string
	baseURL    string
	token      string
	basicUser  string
	basicPass  string
	httpClient *http.Client
}

type Option func(*Client)

func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithBasicAuth(user, password string) Option {
	return func(c *Client) {
		c.basicUser = user
		c.basicPass = password
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func NewClient(backend, baseURL string, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultQueryTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON issues a GET with the configured auth and decodes the JSON body
// into out. One retry on transport failure; none on HTTP errors.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON issues a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

// GetBytes fetches a raw payload (e.g. a rendered PNG).
func (c *Client) GetBytes(ctx context.Context, path string, query url.Values) ([]byte, error) {
	started := time.Now()
	defer func() {
		metrics.AdapterDuration.WithLabelValues(c.backend).Observe(time.Since(started).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s request failed: %w", c.backend, err)
			continue
		}
		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read %s response: %w", c.backend, readErr)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Code: resp.StatusCode, Body: truncateBody(payload)}
		}
		return payload, nil
	}
	return nil, lastErr
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	started := time.Now()
	defer func() {
		metrics.AdapterDuration.WithLabelValues(c.backend).Observe(time.Since(started).Seconds())
	}()

	var encoded []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request body: %w", c.backend, err)
		}
		encoded = raw
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := c.newRequest(ctx, method, path, query, reader)
		if err != nil {
			return err
		}
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s request failed: %w", c.backend, err)
			continue
		}
		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read %s response: %w", c.backend, readErr)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{Code: resp.StatusCode, Body: truncateBody(payload)}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", c.backend, err)
		}
		return nil
	}
	return lastErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", c.backend, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.basicUser != "" || c.basicPass != "" {
		req.SetBasicAuth(c.basicUser, c.basicPass)
	}
	return req, nil
}

// RecordCall feeds the adapter call counter; source is live or sample.
func RecordCall(backend, source string) {
	metrics.AdapterCalls.WithLabelValues(backend, source).Inc()
}

func truncateBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
