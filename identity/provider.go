package identity

import (
	"context"
	"time"
)

// Hooks receive provider lifecycle events. Nil hooks are skipped.
type Hooks struct {
	OnAuthSuccess      func()
	OnAuthLogout       func()
	OnTokenExpired     func()
	OnAuthRefreshError func(err error)
}

func (h Hooks) AuthSuccess() {
	if h.OnAuthSuccess != nil {
		h.OnAuthSuccess()
	}
}

func (h Hooks) AuthLogout() {
	if h.OnAuthLogout != nil {
		h.OnAuthLogout()
	}
}

func (h Hooks) TokenExpired() {
	if h.OnTokenExpired != nil {
		h.OnTokenExpired()
	}
}

func (h Hooks) AuthRefreshError(err error) {
	if h.OnAuthRefreshError != nil {
		h.OnAuthRefreshError(err)
	}
}

// Provider is an OpenID Connect identity provider as seen by the session manager
type Provider interface {
	// Init performs a silent authentication check and registers hooks.
	// It reports whether a usable token is held afterwards.
	Init(ctx context.Context, hooks Hooks) (bool, error)

	// Login runs the interactive authorization flow
	Login(ctx context.Context, redirectTarget string) error

	// Logout ends the provider session. Local tokens are dropped even on error.
	Logout(ctx context.Context, redirectTarget string) error

	// UpdateToken refreshes the token if it expires within minValidity and
	// reports whether a new token was issued
	UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error)

	// Token returns the raw access token, or "" when unauthenticated
	Token() string

	// Claims returns the decoded access token claims, or nil when unauthenticated
	Claims() *Claims
}
