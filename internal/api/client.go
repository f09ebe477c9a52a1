// Package api is the HTTP client for the external session API: the durable
// store of sessions, messages, and handoff requests.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
)

// APIError is a non-2xx response from the session API. It carries the
// status code and any Retry-After metadata for error classification.
type APIError struct {
	StatusCode int
	Message    string
	Retry      time.Duration
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session api: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("session api: status %d", e.StatusCode)
}

// HTTPStatus implements errclass.StatusCoder.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// RetryAfter implements errclass.RetryAfterer.
func (e *APIError) RetryAfter() time.Duration {
	return e.Retry
}

// IsNotFound reports whether err is a 404 from the session API, which
// means the session was deleted server-side.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Options configures the client.
type Options struct {
	BaseURL        string
	TenantID       string
	WidgetConfigID string
	WidgetSecret   string
	RequestTimeout time.Duration
	PollTimeout    time.Duration
	UserAgent      string
}

// Client talks to the session API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	minter         *tokenMinter
	requestTimeout time.Duration
	pollTimeout    time.Duration
	userAgent      string
	tracer         trace.Tracer
}

// NewClient creates a session API client.
func NewClient(opts Options) *Client {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 45 * time.Second
	}
	if opts.PollTimeout == 0 {
		opts.PollTimeout = 15 * time.Second
	}
	return &Client{
		baseURL:        opts.BaseURL,
		httpClient:     &http.Client{},
		minter:         newTokenMinter(opts.WidgetSecret, opts.TenantID, opts.WidgetConfigID),
		requestTimeout: opts.RequestTimeout,
		pollTimeout:    opts.PollTimeout,
		userAgent:      opts.UserAgent,
		tracer:         otel.Tracer("session-api"),
	}
}

// StartSession creates a remote conversation session.
func (c *Client) StartSession(ctx context.Context, req *model.StartSessionRequest) (*model.SessionSnapshot, error) {
	var resp model.StartSessionResponse
	err := c.do(ctx, http.MethodPost, "/conversations/start", req, &resp, c.requestTimeout)
	if err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// SendMessage transmits one message. The response includes the
// server-assigned message and, on the bot path, a synchronous reply.
func (c *Client) SendMessage(ctx context.Context, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	var resp model.SendMessageResponse
	err := c.do(ctx, http.MethodPost, "/conversations/messages/send", req, &resp, c.requestTimeout)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestHandoff asks for the session to be transferred to an operator.
func (c *Client) RequestHandoff(ctx context.Context, req *model.RequestHandoffRequest) (*model.HandoffRequest, error) {
	var resp model.RequestHandoffResponse
	err := c.do(ctx, http.MethodPost, "/conversations/handoff/request", req, &resp, c.requestTimeout)
	if err != nil {
		return nil, err
	}
	return &resp.HandoffRequest, nil
}

// FetchMessages retrieves messages sent after the given timestamp, plus
// the current session snapshot. Uses the shorter poll timeout.
func (c *Client) FetchMessages(ctx context.Context, sessionID string, after time.Time) (*model.PollResponse, error) {
	path := "/conversations/" + url.PathEscape(sessionID) + "/messages"
	if !after.IsZero() {
		path += "?after=" + url.QueryEscape(after.UTC().Format(time.RFC3339Nano))
	}
	var resp model.PollResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp, c.pollTimeout)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health probes the lightweight health endpoint, used as the connectivity
// liveness check.
func (c *Client) Health(ctx context.Context, timeout time.Duration) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, timeout)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, method+" "+path,
		trace.WithAttributes(attribute.String("http.method", method)))
	defer span.End()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	token, err := c.minter.token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return newAPIError(res)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func newAPIError(res *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: res.StatusCode,
		Retry:      parseRetryAfter(res.Header.Get("Retry-After")),
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if data, err := io.ReadAll(io.LimitReader(res.Body, 4096)); err == nil {
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Message = envelope.Error
		}
	}
	return apiErr
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
