package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session keeper
var (
	// Session errors
	ErrNoSession       = errors.New("no session")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionCorrupt  = errors.New("session corrupt")

	// Refresh errors
	ErrRefreshFailed        = errors.New("session refresh failed")
	ErrRetriesExhausted     = errors.New("session refresh retries exhausted")
	ErrNoSessionReturned    = errors.New("no session returned from refresh")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrProviderUnavailable  = errors.New("auth provider unavailable")
	ErrUnsupportedProvider  = errors.New("unsupported auth provider")
	ErrUnsupportedSessionDB = errors.New("unsupported session store")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing claim")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
