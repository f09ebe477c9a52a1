package errclass

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// statusErr is a test double for errors carrying an HTTP status.
type statusErr struct {
	status     int
	retryAfter time.Duration
}

func (e *statusErr) Error() string             { return fmt.Sprintf("status %d", e.status) }
func (e *statusErr) HTTPStatus() int           { return e.status }
func (e *statusErr) RetryAfter() time.Duration { return e.retryAfter }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type connErr struct{}

func (connErr) Error() string   { return "broken pipe" }
func (connErr) Timeout() bool   { return false }
func (connErr) Temporary() bool { return true }

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		kind      Kind
		severity  Severity
		retryable bool
	}{
		{"rate limit", 429, KindRateLimit, SeverityMedium, true},
		{"unauthorized", 401, KindAuthentication, SeverityHigh, false},
		{"forbidden", 403, KindAuthentication, SeverityHigh, false},
		{"payment required", 402, KindQuotaExceeded, SeverityCritical, false},
		{"maintenance", 503, KindMaintenance, SeverityCritical, true},
		{"internal error", 500, KindServer, SeverityHigh, true},
		{"bad gateway", 502, KindServer, SeverityHigh, true},
		{"bad request", 400, KindValidation, SeverityMedium, false},
		{"unprocessable", 422, KindValidation, SeverityMedium, false},
		{"request timeout", 408, KindTimeout, SeverityLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(&statusErr{status: tt.status})
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, tt.retryable, c.Retryable)
			assert.Equal(t, tt.status, c.StatusCode)
		})
	}
}

func TestClassifyRateLimitRetryAfter(t *testing.T) {
	c := Classify(&statusErr{status: 429, retryAfter: 30 * time.Second})
	assert.Equal(t, KindRateLimit, c.Kind)
	assert.Equal(t, 30*time.Second, c.RetryAfter)
}

func TestClassifyRateLimitDefaultDelay(t *testing.T) {
	c := Classify(&statusErr{status: 429})
	assert.Equal(t, DefaultRateLimitDelay, c.RetryAfter)
}

func TestClassifyStatusWinsOverMessage(t *testing.T) {
	// A wrapped status code beats a misleading message.
	err := fmt.Errorf("rate limit hit: %w", &statusErr{status: 500})
	c := Classify(err)
	assert.Equal(t, KindServer, c.Kind)
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	err := fmt.Errorf("send: %w", context.DeadlineExceeded)
	c := Classify(err)
	assert.Equal(t, KindTimeout, c.Kind)
	assert.Equal(t, SeverityLow, c.Severity)
	assert.True(t, c.Retryable)
}

func TestClassifyNetError(t *testing.T) {
	c := Classify(timeoutErr{})
	assert.Equal(t, KindTimeout, c.Kind)

	c = Classify(connErr{})
	assert.Equal(t, KindNetwork, c.Kind)
	assert.Equal(t, SeverityMedium, c.Severity)
	assert.True(t, c.Retryable)
}

func TestClassifyMessagePatterns(t *testing.T) {
	tests := []struct {
		msg  string
		kind Kind
	}{
		{"dial tcp: connection refused", KindNetwork},
		{"lookup api.example.test: no such host", KindNetwork},
		{"read tcp: connection reset by peer", KindNetwork},
		{"request timed out after 45s", KindTimeout},
		{"rate limit exceeded", KindRateLimit},
		{"monthly quota exhausted", KindQuotaExceeded},
		{"platform is under maintenance", KindMaintenance},
		{"something else entirely", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			c := Classify(errors.New(tt.msg))
			assert.Equal(t, tt.kind, c.Kind)
		})
	}
}

func TestClassifyUnknownIsRetryable(t *testing.T) {
	c := Classify(errors.New("boom"))
	assert.Equal(t, KindUnknown, c.Kind)
	assert.Equal(t, SeverityMedium, c.Severity)
	assert.True(t, c.Retryable)
}

func TestKindStringsAreStable(t *testing.T) {
	seen := make(map[string]bool)
	for _, k := range Kinds {
		s := k.String()
		assert.NotEmpty(t, s)
		assert.False(t, seen[s], "duplicate wire name %q", s)
		seen[s] = true
	}
}
