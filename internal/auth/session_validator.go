package auth

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "bearer "

// ErrMissingSessionCookieName is returned when the validator has no cookie to read.
var ErrMissingSessionCookieName = errors.New("session validator: cookie name required")

// TokenValidator validates raw session tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (SessionClaims, error)
}

// SessionValidatorConfig describes where session tokens are read from.
type SessionValidatorConfig struct {
	Tokens     TokenValidator
	CookieName string
}

// SessionValidator reads a session token from a request and validates it.
type SessionValidator struct {
	tokens     TokenValidator
	cookieName string
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if cfg.Tokens == nil {
		return nil, ErrMissingSessionToken
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	return &SessionValidator{tokens: cfg.Tokens, cookieName: cookieName}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateRequest prefers an Authorization bearer token and falls back to the session cookie.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	token := RequestToken(r, v.cookieName)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.tokens.ValidateToken(token)
}

// RequestToken extracts the raw session token, or "" when none is present.
func RequestToken(r *http.Request, cookieName string) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	if cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
