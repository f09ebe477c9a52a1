// Package model defines data structures for the widget delivery layer.
package model

import (
	"time"
)

// HandoffStatus tracks whether a conversation is served by the automated
// agent or has been handed off to a human operator.
type HandoffStatus string

const (
	HandoffStatusBotOnly        HandoffStatus = "bot_only"
	HandoffStatusRequested      HandoffStatus = "handoff_requested"
	HandoffStatusActive         HandoffStatus = "handoff_active"
	HandoffStatusOperatorActive HandoffStatus = "operator_active"
	HandoffStatusResolved       HandoffStatus = "resolved"
)

// handoffEdges enumerates the legal state machine transitions. A self-loop
// on every state is implied; bot_only is both the initial state and the
// state an operator releases back into.
var handoffEdges = map[HandoffStatus][]HandoffStatus{
	HandoffStatusBotOnly:        {HandoffStatusRequested, HandoffStatusResolved},
	HandoffStatusRequested:      {HandoffStatusActive, HandoffStatusOperatorActive, HandoffStatusBotOnly, HandoffStatusResolved},
	HandoffStatusActive:         {HandoffStatusOperatorActive, HandoffStatusBotOnly, HandoffStatusResolved},
	HandoffStatusOperatorActive: {HandoffStatusActive, HandoffStatusBotOnly, HandoffStatusResolved},
	HandoffStatusResolved:       {},
}

// Valid reports whether s is a known handoff status.
func (s HandoffStatus) Valid() bool {
	_, ok := handoffEdges[s]
	return ok
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next. Self-transitions are always permitted.
func (s HandoffStatus) CanTransitionTo(next HandoffStatus) bool {
	if s == next {
		return true
	}
	for _, edge := range handoffEdges[s] {
		if edge == next {
			return true
		}
	}
	return false
}

// HandoffEngaged reports whether a handoff is outstanding or active, which
// is the window during which the polling fallback channel must run.
func (s HandoffStatus) HandoffEngaged() bool {
	switch s {
	case HandoffStatusRequested, HandoffStatusActive, HandoffStatusOperatorActive:
		return true
	}
	return false
}

// Terminal reports whether the session is closed.
func (s HandoffStatus) Terminal() bool {
	return s == HandoffStatusResolved
}

// ConversationSession identifies one widget conversation.
type ConversationSession struct {
	SessionID      string        `json:"session_id"`
	TenantID       string        `json:"tenant_id"`
	WidgetConfigID string        `json:"widget_config_id"`
	HandoffStatus  HandoffStatus `json:"handoff_status"`
	Channel        string        `json:"channel,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

// SessionSnapshot is the session state embedded in poll responses and push
// payloads. Only the handoff status is authoritative for the state machine.
type SessionSnapshot struct {
	SessionID     string        `json:"session_id"`
	Status        string        `json:"status,omitempty"`
	HandoffStatus HandoffStatus `json:"handoff_status"`
}

// StartSessionRequest is the body of POST /conversations/start.
type StartSessionRequest struct {
	TenantID       string `json:"tenant_id"`
	WidgetConfigID string `json:"widget_config_id"`
	Channel        string `json:"channel"`
	UserAgent      string `json:"user_agent,omitempty"`
	ReferrerURL    string `json:"referrer_url,omitempty"`
}

// StartSessionResponse is the response of POST /conversations/start.
type StartSessionResponse struct {
	Session SessionSnapshot `json:"session"`
}
