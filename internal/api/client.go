// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the backend client.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// antiForgeryCookie is the cookie the server uses to carry the
	// anti-forgery value.
	antiForgeryCookie = "XSRF-TOKEN"

	// antiForgeryHeader is the header the server validates on mutating
	// requests.
	antiForgeryHeader = "X-XSRF-TOKEN"

	// statusTokenExpired is the non-standard status some middlewares use
	// for an expired anti-forgery token.
	statusTokenExpired = 419
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared transport for all backend requests.
var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the authenticated HTTP client for the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration

	// mu guards the cached anti-forgery value.
	mu        sync.Mutex
	antiForge string
}

// NewClient creates a client for the given base URL. The client owns a
// cookie jar so the warm-up endpoint can refresh the anti-forgery
// cookie.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: sharedTransport,
			Jar:       jar,
			Timeout:   DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	c.httpClient.Timeout = timeout
	return c
}

// WithLimiter sets a custom request rate limiter.
func (c *Client) WithLimiter(l *rate.Limiter) *Client {
	c.limiter = l
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// LOGGING (without sensitive data)
// =============================================================================

// logRequest logs an API request without exposing headers or body.
func (c *Client) logRequest(method, path string) {
	log.Printf("API Request: %s %s", method, path)
}

// logResponse logs status code and duration only, never the body.
func (c *Client) logResponse(status int, duration time.Duration) {
	log.Printf("API Response: %d (%v)", status, duration)
}

// =============================================================================
// ANTI-FORGERY TOKEN
// =============================================================================

// WarmUp performs the cheap idempotent GET that refreshes the
// anti-forgery cookie, then updates the cached header value from the
// jar. Side effect: mutates the client-wide cached anti-forgery value.
func (c *Client) WarmUp(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/antiforgery", nil)
	if err != nil {
		return fmt.Errorf("failed to create warm-up request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))

	if resp.StatusCode >= 400 {
		return &APIError{Message: "warm-up rejected", Status: resp.StatusCode}
	}

	c.refreshAntiForgery()
	return nil
}

// refreshAntiForgery copies the anti-forgery cookie value into the
// cached header value.
func (c *Client) refreshAntiForgery() {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return
	}
	for _, ck := range c.httpClient.Jar.Cookies(u) {
		if ck.Name == antiForgeryCookie {
			c.mu.Lock()
			c.antiForge = ck.Value
			c.mu.Unlock()
			return
		}
	}
}

// antiForgeryValue returns the cached anti-forgery header value.
func (c *Client) antiForgeryValue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.antiForge
}

// =============================================================================
// CORE REQUEST PATH
// =============================================================================

// do issues one request with the anti-forgery header attached. On the
// first authentication rejection it performs exactly one warm-up call
// and repeats the request once; a second rejection surfaces as
// ErrAuthFailed. body must be replayable, so it is taken as bytes.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	retried := false
	for {
		data, status, err := c.doOnce(ctx, method, path, body, contentType)
		if err != nil {
			return nil, err
		}

		if status == http.StatusUnauthorized || status == statusTokenExpired {
			if retried {
				// Second rejection: surface, no further retries.
				return nil, fmt.Errorf("%w: HTTP %d after token refresh", ErrAuthFailed, status)
			}
			retried = true
			if err := c.WarmUp(ctx); err != nil {
				return nil, fmt.Errorf("%w: token warm-up failed: %v", ErrAuthFailed, err)
			}
			continue
		}

		if status >= 400 {
			return nil, c.handleErrorResponse(status, data)
		}
		return data, nil
	}
}

// doOnce performs a single HTTP round trip. A nil error with a non-2xx
// status means the server responded; the caller decides what to do.
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "vichat/0.3.0")
	if v := c.antiForgeryValue(); v != "" {
		req.Header.Set(antiForgeryHeader, v)
	}

	c.logRequest(method, path)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	c.logResponse(resp.StatusCode, time.Since(start))

	data, err := readResponse(resp)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts an HTTP failure body to a typed error.
func (c *Client) handleErrorResponse(status int, body []byte) error {
	var raw struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := unmarshalLoose(body, &raw); err == nil && raw.Error.Message != "" {
		return mapError(&APIError{
			Code:    raw.Error.Code,
			Message: raw.Error.Message,
			Status:  status,
		})
	}

	// Fallback for unparseable failure bodies.
	switch status {
	case http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: HTTP %d", ErrPayloadTooLarge, status)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: HTTP %d", ErrResourceUnavailable, status)
	default:
		return &APIError{Message: strings.TrimSpace(string(body)), Status: status}
	}
}
