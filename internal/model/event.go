package model

import (
	"time"
)

// EventType names the events emitted on the local UI boundary stream.
type EventType string

const (
	EventTypeMessage      EventType = "message"
	EventTypeStatus       EventType = "status"
	EventTypePresentation EventType = "presentation"
	EventTypeQueue        EventType = "queue"
	EventTypeHeartbeat    EventType = "heartbeat"
)

// StatusChangedEvent reports a handoff status transition to the UI boundary.
type StatusChangedEvent struct {
	SessionID string        `json:"session_id"`
	Previous  HandoffStatus `json:"previous"`
	Current   HandoffStatus `json:"current"`
}

// QueueEvent reports offline queue progress during a flush.
type QueueEvent struct {
	Remaining int  `json:"remaining"`
	Flushing  bool `json:"flushing"`
}

// HeartbeatEvent keeps the event stream connection alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
