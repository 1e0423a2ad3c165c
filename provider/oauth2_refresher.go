package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/jrsteele09/go-session-keeper/token"
	"golang.org/x/oauth2"
)

var _ Refresher = (*OAuth2Refresher)(nil)

// OAuth2Refresher renews sessions with the RFC 6749 refresh_token grant.
type OAuth2Refresher struct {
	config *oauth2.Config
	client *http.Client
	now    func() time.Time
}

func NewOAuth2Refresher(config *oauth2.Config) *OAuth2Refresher {
	return &OAuth2Refresher{
		config: config,
		client: &http.Client{Timeout: defaultClientTimeout},
		now:    time.Now,
	}
}

// NewOIDCRefresher discovers the token endpoint from issuer's
// /.well-known/openid-configuration.
func NewOIDCRefresher(ctx context.Context, issuer, clientID, clientSecret string) (*OAuth2Refresher, error) {
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrProviderUnavailable, "oidc discovery for %s: %v", issuer, err)
	}

	return NewOAuth2Refresher(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     p.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
	}), nil
}

func (o *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	if refreshToken == "" {
		return nil, errors.ErrInvalidRefreshToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	// A token with no access token is never valid, so Token() always hits the endpoint.
	tok, err := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
			return nil, errors.Wrapf(errors.ErrInvalidRefreshToken, "%s", re.ErrorCode)
		}
		return nil, errors.Wrapf(errors.ErrProviderUnavailable, "token endpoint: %v", err)
	}

	now := o.now()
	s := &sessions.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		IssuedAt:     now,
	}

	claims, claimsErr := token.Inspect(tok.AccessToken)
	if s.ExpiresAt.IsZero() {
		// Opaque tokens with no expires_in can't be scheduled.
		if claimsErr != nil || claims.ExpiresAt.IsZero() {
			return nil, errors.Wrapf(errors.ErrMissingClaim, "no expiry for access token")
		}
		s.ExpiresAt = claims.ExpiresAt
	}
	if claimsErr == nil {
		s.UserID = claims.Subject
		s.UserEmail = claims.Email
	}
	return s, nil
}
