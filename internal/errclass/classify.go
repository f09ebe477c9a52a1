// Package errclass maps failed operations onto a closed error taxonomy.
//
// Classification precedence: explicit HTTP status code first, then
// error-message pattern matching, else unknown.
package errclass

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Kind is the closed set of error taxonomy entries.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindRateLimit
	KindAuthentication
	KindServer
	KindQuotaExceeded
	KindMaintenance
	KindValidation
)

// Kinds lists every taxonomy entry, for exhaustive iteration in callers.
var Kinds = []Kind{
	KindUnknown,
	KindNetwork,
	KindTimeout,
	KindRateLimit,
	KindAuthentication,
	KindServer,
	KindQuotaExceeded,
	KindMaintenance,
	KindValidation,
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindAuthentication:
		return "authentication"
	case KindServer:
		return "server"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindMaintenance:
		return "maintenance"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Severity grades how a classified error interrupts the user.
type Severity int

const (
	// SeverityLow errors auto-retry with no user interruption.
	SeverityLow Severity = iota
	// SeverityMedium errors auto-retry with a visible countdown.
	SeverityMedium
	// SeverityHigh errors exhausted retries or are not retryable; a manual
	// retry is offered.
	SeverityHigh
	// SeverityCritical errors block the widget while the session remains
	// otherwise intact.
	SeverityCritical
)

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "critical"
	}
}

// Classification is the taxonomy entry produced for a failed operation.
// It is the error contract surfaced to the UI boundary and analytics.
type Classification struct {
	Kind       Kind          `json:"kind"`
	Severity   Severity      `json:"severity"`
	Retryable  bool          `json:"retryable"`
	StatusCode int           `json:"status_code,omitempty"`
	RetryAfter time.Duration `json:"retry_after_ms,omitempty"`
}

// DefaultRateLimitDelay applies when a 429 carries no usable Retry-After.
const DefaultRateLimitDelay = 60 * time.Second

// StatusCoder is implemented by errors that carry an HTTP status code,
// such as the session API client's APIError.
type StatusCoder interface {
	HTTPStatus() int
}

// RetryAfterer is implemented by errors that carry a server-specified
// retry delay extracted from response metadata.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// Classify maps err to its taxonomy entry.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, Severity: SeverityMedium, Retryable: true}
	}

	// Explicit status code wins over everything else.
	var sc StatusCoder
	if errors.As(err, &sc) {
		if c, ok := classifyStatus(sc.HTTPStatus(), err); ok {
			return c
		}
	}

	// Timeouts: context deadlines and net timeouts both surface here.
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: KindTimeout, Severity: SeverityLow, Retryable: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{Kind: KindTimeout, Severity: SeverityLow, Retryable: true}
		}
		return Classification{Kind: KindNetwork, Severity: SeverityMedium, Retryable: true}
	}

	return classifyMessage(err)
}

func classifyStatus(status int, err error) (Classification, bool) {
	switch {
	case status == 429:
		return Classification{
			Kind:       KindRateLimit,
			Severity:   SeverityMedium,
			Retryable:  true,
			StatusCode: status,
			RetryAfter: retryAfterOf(err),
		}, true
	case status == 401 || status == 403:
		return Classification{Kind: KindAuthentication, Severity: SeverityHigh, Retryable: false, StatusCode: status}, true
	case status == 402:
		return Classification{Kind: KindQuotaExceeded, Severity: SeverityCritical, Retryable: false, StatusCode: status}, true
	case status == 503:
		return Classification{Kind: KindMaintenance, Severity: SeverityCritical, Retryable: true, StatusCode: status}, true
	case status >= 500:
		return Classification{Kind: KindServer, Severity: SeverityHigh, Retryable: true, StatusCode: status}, true
	case status == 400 || status == 422:
		return Classification{Kind: KindValidation, Severity: SeverityMedium, Retryable: false, StatusCode: status}, true
	case status == 408:
		return Classification{Kind: KindTimeout, Severity: SeverityLow, Retryable: true, StatusCode: status}, true
	}
	return Classification{}, false
}

func classifyMessage(err error) Classification {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return Classification{Kind: KindRateLimit, Severity: SeverityMedium, Retryable: true, RetryAfter: retryAfterOf(err)}
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return Classification{Kind: KindTimeout, Severity: SeverityLow, Retryable: true}
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "connection reset"):
		return Classification{Kind: KindNetwork, Severity: SeverityMedium, Retryable: true}
	case strings.Contains(msg, "quota"):
		return Classification{Kind: KindQuotaExceeded, Severity: SeverityCritical, Retryable: false}
	case strings.Contains(msg, "maintenance"):
		return Classification{Kind: KindMaintenance, Severity: SeverityCritical, Retryable: true}
	default:
		return Classification{Kind: KindUnknown, Severity: SeverityMedium, Retryable: true}
	}
}

func retryAfterOf(err error) time.Duration {
	var ra RetryAfterer
	if errors.As(err, &ra) {
		if d := ra.RetryAfter(); d > 0 {
			return d
		}
	}
	return DefaultRateLimitDelay
}
