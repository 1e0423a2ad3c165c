package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/sessions"
)

const (
	gotrueTokenPath      = "/auth/v1/token"
	defaultClientTimeout = 15 * time.Second
)

var _ Refresher = (*GoTrueRefresher)(nil)

// GoTrueRefresher renews sessions against a Supabase project's auth endpoint.
type GoTrueRefresher struct {
	client *resty.Client
	now    func() time.Time
}

// NewGoTrueRefresher creates a refresher for the Supabase project at projectURL
// (e.g. https://xyz.supabase.co) authenticating with the project's anon key.
func NewGoTrueRefresher(projectURL, anonKey string) *GoTrueRefresher {
	client := resty.New().
		SetBaseURL(strings.TrimRight(projectURL, "/")).
		SetTimeout(defaultClientTimeout).
		SetHeader("apikey", anonKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &GoTrueRefresher{
		client: client,
		now:    time.Now,
	}
}

// Refresh performs POST /auth/v1/token?grant_type=refresh_token.
func (g *GoTrueRefresher) Refresh(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	if refreshToken == "" {
		return nil, errors.ErrInvalidRefreshToken
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&TokenResponse{}).
		SetError(&ErrorResponse{}).
		Post(gotrueTokenPath)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrProviderUnavailable, "gotrue token request: %v", err)
	}

	if resp.IsError() {
		detail := ""
		if e, ok := resp.Error().(*ErrorResponse); ok {
			detail = e.String()
		}
		switch {
		case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized:
			return nil, errors.Wrapf(errors.ErrInvalidRefreshToken, "gotrue %d %s", resp.StatusCode(), detail)
		default:
			return nil, errors.Wrapf(errors.ErrProviderUnavailable, "gotrue %d %s", resp.StatusCode(), detail)
		}
	}

	tr, ok := resp.Result().(*TokenResponse)
	if !ok || tr.AccessToken == nil || *tr.AccessToken == "" {
		return nil, errors.ErrNoSessionReturned
	}
	return tr.toSession(g.now()), nil
}
