package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateHandoffReason validates the free-text reason on a handoff request.
func ValidateHandoffReason(reason string) error {
	if len(reason) > 1024 {
		return errors.New("reason exceeds maximum length")
	}
	if !utf8.ValidString(reason) {
		return errors.New("reason must be valid UTF-8")
	}
	return nil
}

// ValidateHandoffPriority validates the priority on a handoff request.
// Empty defaults to normal downstream.
func ValidateHandoffPriority(priority string) error {
	switch priority {
	case "", "low", "normal", "high", "urgent":
		return nil
	}
	return errors.New("invalid priority")
}
