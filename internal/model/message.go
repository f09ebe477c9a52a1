package model

import (
	"time"
)

// SenderType identifies the author of a conversation turn.
type SenderType string

const (
	SenderUser     SenderType = "user"
	SenderBot      SenderType = "bot"
	SenderOperator SenderType = "operator"
	SenderSystem   SenderType = "system"
)

// Inbound reports whether messages from this sender originate remotely and
// therefore flow through the delivery coordinator.
func (s SenderType) Inbound() bool {
	return s == SenderBot || s == SenderOperator || s == SenderSystem
}

// Message is one conversation turn. The server-assigned ID is the
// deduplication key: a message already forwarded to the UI boundary must
// never be forwarded again.
type Message struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	SenderType  SenderType `json:"sender_type"`
	SenderName  string     `json:"sender_name,omitempty"`
	Content     string     `json:"content"`
	ContentType string     `json:"content_type,omitempty"`
	SentAt      time.Time  `json:"sent_at"`
}

// SendMessageRequest is the body of POST /conversations/messages/send.
type SendMessageRequest struct {
	SessionID   string     `json:"session_id"`
	Content     string     `json:"content"`
	SenderType  SenderType `json:"sender_type"`
	ContentType string     `json:"content_type,omitempty"`
}

// SendMessageResponse is the response of POST /conversations/messages/send.
// Reply is present when the automated agent answered synchronously.
type SendMessageResponse struct {
	Message *Message `json:"message"`
	Reply   *Message `json:"reply,omitempty"`
}

// PollResponse is the response of GET /conversations/{sessionId}/messages.
type PollResponse struct {
	Conversation SessionSnapshot `json:"conversation"`
	Messages     []Message       `json:"messages"`
}

// PushPayload is the payload broadcast on the per-session push channel.
// The session snapshot is optional; when present it is fed to the session
// manager like a poll snapshot.
type PushPayload struct {
	Message Message          `json:"message"`
	Session *SessionSnapshot `json:"session,omitempty"`
}

// OfflineQueueEntry is a user message buffered while disconnected.
type OfflineQueueEntry struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
