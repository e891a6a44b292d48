package errors

import (
	"errors"
	"fmt"
)

// Common error types for the ticket client
var (
	// Authentication errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrLoginFailed      = errors.New("login failed")
	ErrInvalidState     = errors.New("invalid state parameter")
	ErrInvalidNonce     = errors.New("invalid nonce")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrMissingIDToken      = errors.New("no id token in response")
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// User sync errors
	ErrUserSyncFailed = errors.New("failed to sync user with all available methods")

	// Session store errors
	ErrSessionNotFound = errors.New("session not found")

	// General errors
	ErrNotFound = errors.New("not found")
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
