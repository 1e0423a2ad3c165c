package sessions

import (
	"time"
)

// Session is the authentication credential issued by the external auth provider.
// The keeper never mints sessions; it only holds the latest one long enough to
// decide when to renew it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	IssuedAt     time.Time `json:"issued_at,omitempty"`

	// Informational only; renewal never depends on the user fields.
	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

// Remaining returns the time left before the access token expires. It is negative
// once the session has expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// Expired reports whether ExpiresAt is at or before now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Clone returns a copy safe to hand to other goroutines.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// AuthEvent is the auth-state change reported by a provider.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthListener receives auth-state changes. session is nil for SIGNED_OUT.
type AuthListener func(event AuthEvent, session *Session)
