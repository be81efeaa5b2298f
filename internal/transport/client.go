package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docsign/internal/session"
	"docsign/internal/util"
)

const maxErrorBody = 1 << 20

// Client calls the document service over HTTP on behalf of one session.
// It makes a single attempt per call; retries are up to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout bounds each round trip; zero leaves requests unbounded. It
// applies to a copy of the current HTTP client, so a client passed to
// WithHTTPClient keeps its transport and is not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		h := *c.httpClient
		h.Timeout = d
		c.httpClient = &h
	}
}

// NewClient constructs a document service client bound to sess.
func NewClient(baseURL string, sess *session.Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		session:    sess,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session whose token the client attaches.
func (c *Client) Session() *session.Session {
	return c.session
}

// WithSession returns a client sharing configuration but bound to sess.
func (c *Client) WithSession(sess *session.Session) *Client {
	return &Client{baseURL: c.baseURL, httpClient: c.httpClient, session: sess}
}

// Send performs an authenticated JSON call and decodes the response into out
// when out is non-nil.
func (c *Client) Send(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	return decodeJSON(resp, path, out)
}

// SendPublic performs a JSON call to an endpoint that needs no token, such
// as login or register. No Authorization header is sent.
func (c *Client) SendPublic(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, false)
	if err != nil {
		return err
	}
	return decodeJSON(resp, path, out)
}

// Blob is a binary response. The caller owns Body and must Close it.
type Blob struct {
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

func (b *Blob) Close() error {
	if b == nil || b.Body == nil {
		return nil
	}
	return b.Body.Close()
}

// ReadAll drains and closes the blob.
func (b *Blob) ReadAll() ([]byte, error) {
	defer b.Close()
	return io.ReadAll(b.Body)
}

// Fetch performs an authenticated GET against a binary endpoint. JSON parsing
// is bypassed on success.
func (c *Client) Fetch(ctx context.Context, path string) (*Blob, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	return &Blob{
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, authenticated bool) (*http.Response, error) {
	token := ""
	if authenticated {
		token = c.session.Token()
		if token == "" {
			return nil, &AuthError{Message: "authentication required"}
		}
		if c.session.Expired() {
			c.clearSession(ctx, path, "token expired")
			return nil, &AuthError{Message: "session expired, please log in again"}
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := util.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = util.NewRequestID()
	}
	req.Header.Set(util.RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("document service unreachable", "method", method, "path", path, "request_id", requestID, "err", err)
		return nil, &RequestError{Message: msgNetworkError, Err: err}
	}
	slog.Debug(
		"document service call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, c.translate(ctx, path, resp, authenticated)
}

func (c *Client) translate(ctx context.Context, path string, resp *http.Response, authenticated bool) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg, details := parseErrorBody(data)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if authenticated {
			c.clearSession(ctx, path, "token rejected")
		}
		return &AuthError{Status: resp.StatusCode, Message: msg}
	case http.StatusNotFound:
		return &NotFoundError{Message: msg}
	default:
		return &RequestError{Status: resp.StatusCode, Message: msg, Details: details}
	}
}

func (c *Client) clearSession(ctx context.Context, path, reason string) {
	if err := c.session.ClearToken(); err != nil {
		util.LoggerFromContext(ctx).Warn("failed to clear session", "path", path, "err", err)
		return
	}
	util.LoggerFromContext(ctx).Info("session cleared", "path", path, "reason", reason)
}

// parseErrorBody extracts a human-readable message from an error response:
// "error", then "message", then "detail". Bodies that are not JSON objects
// yield "network error".
func parseErrorBody(data []byte) (string, map[string]any) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return msgNetworkError, nil
	}
	for _, key := range []string{"error", "message", "detail"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, obj
		}
	}
	return msgRequestFailed, obj
}

func decodeJSON(resp *http.Response, path string, out any) error {
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Status: resp.StatusCode, Message: msgNetworkError, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &ParseError{Path: path, Err: errors.New("empty response body")}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}
