package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
)

// Claims is the subset of an access token's payload the keeper cares about.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Inspect reads the claims of a JWT access token without verifying its signature.
// The keeper only uses the result for scheduling; the provider remains the authority
// on whether the token is valid.
func Inspect(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.ErrInvalidToken
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "%v", err)
	}

	mapClaims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "error extracting claims")
	}

	c := &Claims{}
	c.Subject, _ = mapClaims.GetSubject()
	c.Email, _ = mapClaims["email"].(string)

	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	return c, nil
}

// ExpiresAt returns the exp claim of rawToken.
func ExpiresAt(rawToken string) (time.Time, error) {
	c, err := Inspect(rawToken)
	if err != nil {
		return time.Time{}, err
	}
	if c.ExpiresAt.IsZero() {
		return time.Time{}, errors.Wrapf(errors.ErrMissingClaim, "exp")
	}
	return c.ExpiresAt, nil
}
