package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the widget bearer token payload.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Scopes   []string `json:"scope"`
}

// tokenMinter signs short-lived widget tokens for the session API. Tokens
// are re-minted shortly before expiry rather than refreshed server-side.
type tokenMinter struct {
	secret   []byte
	tenantID string
	widgetID string
	ttl      time.Duration

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func newTokenMinter(secret, tenantID, widgetID string) *tokenMinter {
	return &tokenMinter{
		secret:   []byte(secret),
		tenantID: tenantID,
		widgetID: widgetID,
		ttl:      15 * time.Minute,
	}
}

func (m *tokenMinter) token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.cached != "" && now.Before(m.expires.Add(-time.Minute)) {
		return m.cached, nil
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "widget:" + m.widgetID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		TenantID: m.tenantID,
		Scopes:   []string{"conversations:read", "conversations:write"},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign widget token: %w", err)
	}

	m.cached = signed
	m.expires = claims.ExpiresAt.Time
	return signed, nil
}
