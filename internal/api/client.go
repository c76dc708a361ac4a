// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport to the chat backend.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is used when no server URL is configured.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed size of a JSON response body.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// DefaultUserAgent identifies the client.
	DefaultUserAgent = "parley/0.1.0"
)

// newTransport returns a pooled transport that refuses TLS below 1.2.
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// TokenSource supplies and clears the bearer token.
type TokenSource interface {
	Token() (string, bool)
	Clear() error
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend.
type Client struct {
	baseURL   string
	tokens    TokenSource
	http      *http.Client // bounded by timeout
	stream    *http.Client // context-controlled only
	userAgent string
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces both the request and streaming HTTP clients.
// Mostly useful for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
			c.stream = hc
		}
	}
}

// WithTimeout sets the timeout for non-streaming requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the backend at baseURL. tokens may be nil for a
// client that only logs in.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", baseURL)
	}

	transport := newTransport()
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		tokens:    tokens,
		http:      &http.Client{Transport: transport, Timeout: DefaultTimeout},
		stream:    &http.Client{Transport: transport},
		userAgent: DefaultUserAgent,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// call describes one backend request.
type call struct {
	method   string
	path     string
	body     any
	auth     bool
	fallback string // message when the server offers none
}

// newRequest builds the HTTP request for cl.
func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if cl.auth && c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

// send performs req and applies the shared status handling. On success the
// caller owns resp.Body.
func (c *Client) send(hc *http.Client, req *http.Request, cl call) (*http.Response, error) {
	start := time.Now()
	// Secure logging: never headers (auth) or bodies (user content)
	c.logger.Debug("api request", zap.String("method", req.Method), zap.String("path", req.URL.Path))

	resp, err := hc.Do(req)
	req.Header.Del("Authorization")
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, ctxErr)
		}
		return nil, &TransportError{Op: cl.method + " " + cl.path, Err: err}
	}

	c.logger.Debug("api response",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if err := c.checkStatus(resp, cl); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// checkStatus converts a non-2xx response into an error. A 401 on an
// authenticated call clears credentials before the body is looked at.
func (c *Client) checkStatus(resp *http.Response, cl call) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusUnauthorized && cl.auth {
		if c.tokens != nil {
			if err := c.tokens.Clear(); err != nil {
				c.logger.Warn("failed to clear credentials after 401", zap.Error(err))
			}
		}
		c.logger.Info("backend rejected credentials", zap.String("path", cl.path))
		return ErrUnauthorized
	}

	body, err := readResponse(resp)
	if err != nil {
		body = nil
	}
	return &APIError{Status: resp.StatusCode, Message: extractMessage(body, cl.fallback)}
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
//
// SECURITY: Response size limit prevents memory exhaustion attacks.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, &TransportError{Op: "read response", Err: err}
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return body, nil
}

// doJSON performs cl and decodes a JSON response into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, cl call, out any) error {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return err
	}
	resp, err := c.send(c.http, req, cl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
