package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/retry"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/session"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/store"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
)

// scriptedAPI is a canned session API for boundary tests.
type scriptedAPI struct {
	sendErr error
}

func (a *scriptedAPI) StartSession(ctx context.Context, req *model.StartSessionRequest) (*model.SessionSnapshot, error) {
	return &model.SessionSnapshot{SessionID: "sess-1", HandoffStatus: model.HandoffStatusBotOnly}, nil
}

func (a *scriptedAPI) SendMessage(ctx context.Context, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	return &model.SendMessageResponse{
		Message: &model.Message{ID: "m1", Content: req.Content, SenderType: req.SenderType, SentAt: time.Now()},
		Reply:   &model.Message{ID: "m2", Content: "echo: " + req.Content, SenderType: model.SenderBot, SentAt: time.Now()},
	}, nil
}

func (a *scriptedAPI) RequestHandoff(ctx context.Context, req *model.RequestHandoffRequest) (*model.HandoffRequest, error) {
	return &model.HandoffRequest{ID: "h1", SessionID: req.SessionID, Priority: req.Priority, Status: "pending"}, nil
}

type staticBuffer struct {
	offline bool
}

func (b *staticBuffer) Offline() bool { return b.offline }
func (b *staticBuffer) Enqueue(ctx context.Context, content string) (int, error) {
	return 3, nil
}

func newTestHandler(t *testing.T, api session.API, buf session.Buffer) *MessagesHandler {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := session.NewManager(api, st, retry.NewEngine(), session.Identity{TenantID: "t"}, logger.NewNop())
	if buf != nil {
		m.SetBuffer(buf)
	}
	return NewMessagesHandler(m, logger.NewNop())
}

func TestSendReturnsMessageAndReply(t *testing.T) {
	h := newTestHandler(t, &scriptedAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"content":"hello"}`))
	w := httptest.NewRecorder()
	h.Send(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp model.SendMessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hello", resp.Message.Content)
	require.NotNil(t, resp.Reply)
	assert.Equal(t, model.SenderBot, resp.Reply.SenderType)
}

func TestSendRejectsEmptyContent(t *testing.T) {
	h := newTestHandler(t, &scriptedAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"content":""}`))
	w := httptest.NewRecorder()
	h.Send(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(t, &scriptedAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	h.Send(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendAcceptedWhenQueuedOffline(t *testing.T) {
	h := newTestHandler(t, &scriptedAPI{}, &staticBuffer{offline: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"content":"later"}`))
	w := httptest.NewRecorder()
	h.Send(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp queuedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Queued)
	assert.Equal(t, 3, resp.Position)
}

func TestSendClassifiedFailureEnvelope(t *testing.T) {
	h := newTestHandler(t, &scriptedAPI{sendErr: errors.New("monthly quota exhausted")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"content":"hello"}`))
	w := httptest.NewRecorder()
	h.Send(w, req)

	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body struct {
		Error classifiedErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "quota_exceeded", body.Error.Kind)
	assert.Equal(t, "critical", body.Error.Severity)
	assert.False(t, body.Error.Retryable)
}

func TestRequestHandoffAccepted(t *testing.T) {
	h := newTestHandler(t, &scriptedAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/handoff", strings.NewReader(`{"reason":"need a human"}`))
	w := httptest.NewRecorder()
	h.RequestHandoff(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var hr model.HandoffRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hr))
	assert.Equal(t, "h1", hr.ID)
	assert.Equal(t, model.PriorityNormal, hr.Priority)
}

func TestRequestHandoffRejectsBadPriority(t *testing.T) {
	h := newTestHandler(t, &scriptedAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/handoff", strings.NewReader(`{"priority":"asap"}`))
	w := httptest.NewRecorder()
	h.RequestHandoff(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
