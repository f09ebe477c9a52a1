package push

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
)

const (
	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	// eventMessageSent is the current broadcast event name.
	eventMessageSent = "message.sent"

	// eventMessageSentLegacy is the older dotted convention some brokers
	// still publish under. Both carry the same payload shape.
	eventMessageSentLegacy = "conversation.message.sent"
)

// MessageSubject returns the current subject for a session's messages.
func MessageSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, sessionID, eventMessageSent)
}

// LegacyMessageSubject returns the legacy subject for a session's messages.
func LegacyMessageSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, sessionID, eventMessageSentLegacy)
}

// Handler receives decoded push payloads.
type Handler func(payload model.PushPayload)

// Subscription is an active per-session subscription over both event names.
type Subscription struct {
	subs []*nats.Subscription
}

// Subscribe attaches to the per-session topic under both broadcast naming
// conventions and invokes handler for each decoded payload. Undecodable
// payloads are dropped; the polling channel is the correctness backstop.
func (c *Client) Subscribe(sessionID string, handler Handler) (*Subscription, error) {
	subjects := []string{
		MessageSubject(sessionID),
		LegacyMessageSubject(sessionID),
	}

	cb := func(msg *nats.Msg) {
		var payload model.PushPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logger.Warn("dropping undecodable push payload",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		handler(payload)
	}

	sub := &Subscription{}
	for _, subject := range subjects {
		s, err := c.conn.Subscribe(subject, cb)
		if err != nil {
			sub.Unsubscribe()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		sub.subs = append(sub.subs, s)
	}

	return sub, nil
}

// Unsubscribe detaches from the session topic.
func (s *Subscription) Unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}
