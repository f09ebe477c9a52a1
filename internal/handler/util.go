package handler

import (
	"encoding/json"
	"net/http"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/errclass"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// classifiedErrorBody is the error envelope for classified send failures.
// The embedding page renders from the classification, not from the raw
// error text.
type classifiedErrorBody struct {
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Retryable  bool   `json:"retryable"`
	StatusCode int    `json:"status_code,omitempty"`
	RetryAfter int64  `json:"retry_after_ms,omitempty"`
	Message    string `json:"message"`
}

func writeClassifiedError(w http.ResponseWriter, c errclass.Classification, message string) {
	status := http.StatusBadGateway
	switch c.Kind {
	case errclass.KindValidation:
		status = http.StatusBadRequest
	case errclass.KindRateLimit:
		status = http.StatusTooManyRequests
	case errclass.KindAuthentication:
		status = http.StatusForbidden
	case errclass.KindQuotaExceeded:
		status = http.StatusPaymentRequired
	case errclass.KindMaintenance:
		status = http.StatusServiceUnavailable
	case errclass.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	writeJSON(w, status, map[string]classifiedErrorBody{
		"error": {
			Kind:       c.Kind.String(),
			Severity:   c.Severity.String(),
			Retryable:  c.Retryable,
			StatusCode: c.StatusCode,
			RetryAfter: c.RetryAfter.Milliseconds(),
			Message:    message,
		},
	})
}
