package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/jrsteele09/go-session-keeper/token"
	"github.com/rs/zerolog/log"
)

const maxSignInBody = 64 << 10

// SignInRequest is the session a client obtained from the auth provider, in the
// provider's own shape: expires_at is unix seconds.
type SignInRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// SessionView describes a session without exposing its tokens.
type SessionView struct {
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

type StatusResponse struct {
	Valid     bool           `json:"valid"`
	ExpiresIn *int64         `json:"expires_in,omitempty"`
	Scheduler refresh.Status `json:"scheduler"`
}

// StatusHandler reports whether the session is valid and what the scheduler is doing.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Valid:     s.keeper.IsSessionValid(r.Context()),
			Scheduler: s.keeper.Status(),
		}
		if remaining, ok := s.keeper.TimeUntilExpiry(r.Context()); ok {
			seconds := int64(remaining / time.Second)
			resp.ExpiresIn = &seconds
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignInRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignInBody)).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse session", http.StatusBadRequest)
			return
		}
		if req.AccessToken == "" || req.RefreshToken == "" {
			writeJSONError(w, "invalid_request", "access_token and refresh_token are required", http.StatusBadRequest)
			return
		}

		session, err := s.sessionFromRequest(req)
		if err != nil {
			writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		if err := s.auth.SignIn(r.Context(), session); err != nil {
			log.Err(err).Msg("Failed to sign in")
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.view(session))
	}
}

// sessionFromRequest fills whatever the request left out from the access
// token's claims.
func (s *Server) sessionFromRequest(req SignInRequest) (*sessions.Session, error) {
	session := &sessions.Session{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
	}

	claims, claimsErr := token.Inspect(req.AccessToken)
	if claimsErr == nil {
		session.UserID = claims.Subject
		session.UserEmail = claims.Email
		session.IssuedAt = claims.IssuedAt
	}

	switch {
	case req.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(req.ExpiresAt, 0)
	case req.ExpiresIn > 0:
		session.ExpiresAt = s.now().Add(time.Duration(req.ExpiresIn) * time.Second)
	case claimsErr == nil && !claims.ExpiresAt.IsZero():
		session.ExpiresAt = claims.ExpiresAt
	default:
		return nil, errors.Wrapf(errors.ErrMissingClaim, "expires_at, expires_in or an exp claim is required")
	}
	return session, nil
}

func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.SignOut(r.Context()); err != nil {
			log.Err(err).Msg("Failed to sign out")
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CheckHandler renews the session if it is close to expiry.
func (s *Server) CheckHandler() http.HandlerFunc {
	return s.renewHandler(s.keeper.CheckAndRefreshSession)
}

// RefreshHandler renews the session unconditionally.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return s.renewHandler(s.keeper.ForceRefresh)
}

func (s *Server) renewHandler(renew func(ctx context.Context) (*sessions.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := renew(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if session == nil {
			writeJSONError(w, "no_session", "No active session", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, s.view(session))
	}
}

// WakeHandler lets a client report that it became visible or came back online.
func (s *Server) WakeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reason := r.URL.Query().Get("reason")
		waker, ok := s.wakers[reason]
		if !ok {
			writeJSONError(w, "invalid_request", "unknown wake reason: "+reason, http.StatusBadRequest)
			return
		}
		waker.Fire()
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) view(session *sessions.Session) SessionView {
	return SessionView{
		UserID:    session.UserID,
		Email:     session.UserEmail,
		ExpiresAt: session.ExpiresAt,
		ExpiresIn: int64(max(0, session.Remaining(s.now())) / time.Second),
	}
}

// writeSessionError maps renewal failures onto HTTP status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNoSession), errors.Is(err, errors.ErrSessionNotFound):
		writeJSONError(w, "no_session", err.Error(), http.StatusNotFound)
	case errors.Is(err, errors.ErrInvalidRefreshToken), errors.Is(err, errors.ErrRetriesExhausted):
		writeJSONError(w, "session_expired", err.Error(), http.StatusUnauthorized)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, "timeout", err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, errors.ErrProviderUnavailable), errors.Is(err, errors.ErrRefreshFailed):
		writeJSONError(w, "provider_error", err.Error(), http.StatusBadGateway)
	default:
		writeJSONError(w, "server_error", err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an OAuth2 style error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
