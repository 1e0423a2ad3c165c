package provider

import (
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/utils"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/jrsteele09/go-session-keeper/token"
)

// TokenResponse is the token endpoint payload returned by Supabase GoTrue.
// It is a superset of the RFC 6749 token response.
type TokenResponse struct {
	// AccessToken is the JWT sent as "Authorization: Bearer <access_token>".
	AccessToken *string `json:"access_token,omitempty"`

	// TokenType is always "bearer" for GoTrue.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// ExpiresAt is the absolute expiry in unix seconds (GoTrue specific).
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// RefreshToken is rotated on every use; the old one becomes invalid.
	RefreshToken *string `json:"refresh_token,omitempty"`

	User *TokenUser `json:"user,omitempty"`
}

type TokenUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// ErrorResponse covers both the OAuth style and the newer GoTrue error bodies.
type ErrorResponse struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	Msg              string `json:"msg,omitempty"`
}

func (e *ErrorResponse) String() string {
	if e == nil {
		return ""
	}
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Error, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return ""
}

// toSession resolves the absolute expiry, preferring expires_at, then expires_in,
// then the access token's exp claim.
func (t *TokenResponse) toSession(now time.Time) *sessions.Session {
	s := &sessions.Session{
		AccessToken:  utils.Value(t.AccessToken),
		RefreshToken: utils.Value(t.RefreshToken),
		TokenType:    t.TokenType,
		IssuedAt:     now,
	}

	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	default:
		if exp, err := token.ExpiresAt(s.AccessToken); err == nil {
			s.ExpiresAt = exp
		}
	}

	if t.User != nil {
		s.UserID = t.User.ID
		s.UserEmail = t.User.Email
	}
	if s.UserID == "" {
		if c, err := token.Inspect(s.AccessToken); err == nil {
			s.UserID = c.Subject
			if s.UserEmail == "" {
				s.UserEmail = c.Email
			}
		}
	}
	return s
}
