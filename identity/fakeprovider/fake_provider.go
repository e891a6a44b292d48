// Package fakeprovider is a scriptable identity.Provider for tests
package fakeprovider

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/internal/errors"
)

type Provider struct {
	mu          sync.Mutex
	hooks       identity.Hooks
	token       string
	claims      *identity.Claims
	initToken   string
	initErr     error
	loginToken  string
	loginErr    error
	nextToken   string
	updateErr   error
	logoutErr   error
	initCalls   int
	loginCalls  int
	logoutCalls int
	updateCalls []time.Duration
}

var _ identity.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{}
}

// SetInitResult makes Init succeed silently with token, or fail with err
func (p *Provider) SetInitResult(token string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initToken, p.initErr = token, err
}

func (p *Provider) SetLoginResult(token string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginToken, p.loginErr = token, err
}

// SetUpdateResult scripts UpdateToken: err fails the call, otherwise a
// non-empty token is issued whenever a refresh is due
func (p *Provider) SetUpdateResult(token string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextToken, p.updateErr = token, err
}

func (p *Provider) SetLogoutError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logoutErr = err
}

// SetToken installs token directly, as if issued by an earlier login
func (p *Provider) SetToken(token string) error {
	claims, err := identity.ParseClaims(token)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token, p.claims = token, claims
	return nil
}

func (p *Provider) Init(_ context.Context, hooks identity.Hooks) (bool, error) {
	p.mu.Lock()
	p.initCalls++
	p.hooks = hooks
	token, err := p.initToken, p.initErr
	p.mu.Unlock()

	if err != nil || token == "" {
		return false, err
	}
	if err := p.SetToken(token); err != nil {
		return false, err
	}
	hooks.AuthSuccess()
	return true, nil
}

func (p *Provider) Login(_ context.Context, _ string) error {
	p.mu.Lock()
	p.loginCalls++
	token, err, hooks := p.loginToken, p.loginErr, p.hooks
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if token == "" {
		return errors.ErrLoginFailed
	}
	if err := p.SetToken(token); err != nil {
		return err
	}
	hooks.AuthSuccess()
	return nil
}

func (p *Provider) Logout(_ context.Context, _ string) error {
	p.mu.Lock()
	p.logoutCalls++
	p.token, p.claims = "", nil
	err, hooks := p.logoutErr, p.hooks
	p.mu.Unlock()

	hooks.AuthLogout()
	return err
}

func (p *Provider) UpdateToken(_ context.Context, minValidity time.Duration) (bool, error) {
	p.mu.Lock()
	p.updateCalls = append(p.updateCalls, minValidity)
	token, claims := p.token, p.claims
	next, err, hooks := p.nextToken, p.updateErr, p.hooks
	p.mu.Unlock()

	if token == "" {
		return false, errors.ErrNotAuthenticated
	}
	if err != nil {
		hooks.AuthRefreshError(err)
		return false, err
	}
	if minValidity >= 0 && claims.ExpiresIn(identity.NowTimeFunc()) > minValidity {
		return false, nil
	}
	if next == "" || next == token {
		return false, nil
	}
	if err := p.SetToken(next); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *Provider) Claims() *identity.Claims {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claims == nil {
		return nil
	}
	c := *p.claims
	return &c
}

// ExpireToken fires the OnTokenExpired hook
func (p *Provider) ExpireToken() {
	p.mu.Lock()
	hooks := p.hooks
	p.mu.Unlock()
	hooks.TokenExpired()
}

func (p *Provider) InitCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initCalls
}

func (p *Provider) LoginCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginCalls
}

func (p *Provider) LogoutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logoutCalls
}

// UpdateCalls returns the minValidity of every UpdateToken call
func (p *Provider) UpdateCalls() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.updateCalls...)
}
