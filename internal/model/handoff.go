package model

// Handoff trigger types, from the widest to the narrowest initiator.
const (
	TriggerUserRequest   = "user_request"
	TriggerBotEscalation = "bot_escalation"
	TriggerSystem        = "system"
)

// Handoff request priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// HandoffRequest is a request to transfer a session to a human operator.
// The client only creates and reports these; terminal states are observed
// through the owning session's handoff status.
type HandoffRequest struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Priority  string `json:"priority"`
	Status    string `json:"status"`
}

// RequestHandoffRequest is the body of POST /conversations/handoff/request.
type RequestHandoffRequest struct {
	SessionID   string `json:"session_id"`
	TriggerType string `json:"trigger_type"`
	Reason      string `json:"reason"`
	Priority    string `json:"priority"`
}

// RequestHandoffResponse is the response of POST /conversations/handoff/request.
type RequestHandoffResponse struct {
	HandoffRequest HandoffRequest `json:"handoff_request"`
}
