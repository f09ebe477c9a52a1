package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:        baseURL,
		TenantID:       "tenant-1",
		WidgetConfigID: "widget-1",
		WidgetSecret:   "test-secret",
		UserAgent:      "widget-agent-test/1.0",
	})
}

func TestStartSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/conversations/start", r.URL.Path)

		var req model.StartSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tenant-1", req.TenantID)
		assert.Equal(t, "widget-1", req.WidgetConfigID)

		json.NewEncoder(w).Encode(model.StartSessionResponse{
			Session: model.SessionSnapshot{
				SessionID:     "sess-1",
				HandoffStatus: model.HandoffStatusBotOnly,
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	snap, err := c.StartSession(context.Background(), &model.StartSessionRequest{
		TenantID:       "tenant-1",
		WidgetConfigID: "widget-1",
		Channel:        "widget",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, model.HandoffStatusBotOnly, snap.HandoffStatus)
}

func TestRequestsCarrySignedToken(t *testing.T) {
	var authz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(model.StartSessionResponse{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.StartSession(context.Background(), &model.StartSessionRequest{})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(authz, "Bearer "))
	raw := strings.TrimPrefix(authz, "Bearer ")

	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, tok.Valid)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "widget:widget-1", claims.Subject)
	assert.Contains(t, claims.Scopes, "conversations:write")
}

func TestFetchMessagesCursorParam(t *testing.T) {
	after := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/sess-1/messages", r.URL.Path)
		assert.Equal(t, after.Format(time.RFC3339Nano), r.URL.Query().Get("after"))

		json.NewEncoder(w).Encode(model.PollResponse{
			Conversation: model.SessionSnapshot{
				SessionID:     "sess-1",
				HandoffStatus: model.HandoffStatusOperatorActive,
			},
			Messages: []model.Message{
				{ID: "m1", SenderType: model.SenderOperator, Content: "hello"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.FetchMessages(context.Background(), "sess-1", after)
	require.NoError(t, err)
	assert.Equal(t, model.HandoffStatusOperatorActive, resp.Conversation.HandoffStatus)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "m1", resp.Messages[0].ID)
}

func TestFetchMessagesZeroCursorOmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("after"))
		json.NewEncoder(w).Encode(model.PollResponse{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchMessages(context.Background(), "sess-1", time.Time{})
	require.NoError(t, err)
}

func TestNotFoundError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchMessages(context.Background(), "sess-1", time.Time{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "session not found", apiErr.Message)
}

func TestRetryAfterSeconds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SendMessage(context.Background(), &model.SendMessageRequest{
		SessionID: "sess-1", Content: "hi", SenderType: model.SenderUser,
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 30*time.Second, apiErr.RetryAfter())
}

func TestRetryAfterHTTPDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", time.Now().Add(45*time.Second).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SendMessage(context.Background(), &model.SendMessageRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Greater(t, apiErr.RetryAfter(), 30*time.Second)
	assert.LessOrEqual(t, apiErr.RetryAfter(), 45*time.Second)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	assert.NoError(t, c.Health(context.Background(), time.Second))
}

func TestHealthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	assert.Error(t, c.Health(context.Background(), time.Second))
}
