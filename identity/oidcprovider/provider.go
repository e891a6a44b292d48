// Package oidcprovider implements identity.Provider against an OpenID Connect
// server such as Keycloak, using the authorization code flow with PKCE and a
// loopback redirect.
package oidcprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/internal/config"
	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	loginTimeout = 5 * time.Minute
	flowMaxAge   = 10 * time.Minute
)

// endpoints are discovery fields go-oidc does not expose directly
type endpoints struct {
	EndSession string `json:"end_session_endpoint"`
	Revocation string `json:"revocation_endpoint"`
}

type Provider struct {
	issuerURL    string
	clientID     string
	clientSecret string
	scopes       []string
	pkce         bool
	callbackAddr string
	callbackPath string
	openBrowser  func(authURL string) error
	cache        TokenCache
	httpClient   *http.Client
	logger       zerolog.Logger
	flows        *flowStates

	mu           sync.Mutex
	oidcProvider *oidc.Provider
	endpoints    endpoints
	oauth2Config *oauth2.Config
	token        *oauth2.Token
	claims       *identity.Claims
	hooks        identity.Hooks
	expiryTimer  *time.Timer
}

var _ identity.Provider = (*Provider)(nil)

type Option func(*Provider)

func WithClientSecret(secret string) Option {
	return func(p *Provider) { p.clientSecret = secret }
}

func WithScopes(scopes ...string) Option {
	return func(p *Provider) { p.scopes = scopes }
}

func WithPKCE(enabled bool) Option {
	return func(p *Provider) { p.pkce = enabled }
}

// WithCallback sets the loopback listen address and redirect path.
// A port of 0 picks a free port.
func WithCallback(addr, path string) Option {
	return func(p *Provider) {
		p.callbackAddr = addr
		p.callbackPath = path
	}
}

// WithBrowser replaces the function that presents the authorization URL to the user
func WithBrowser(open func(authURL string) error) Option {
	return func(p *Provider) { p.openBrowser = open }
}

func WithTokenCache(cache TokenCache) Option {
	return func(p *Provider) { p.cache = cache }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a provider for the realm at issuerURL, e.g.
// "http://localhost:8180/realms/sav-realm". Discovery is deferred to first use.
func New(issuerURL, clientID string, opts ...Option) *Provider {
	p := &Provider{
		issuerURL:    strings.TrimRight(issuerURL, "/"),
		clientID:     clientID,
		scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
		pkce:         true,
		callbackAddr: "127.0.0.1:0",
		callbackPath: "/callback",
		openBrowser:  OpenBrowser,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		logger: log.Logger,
		flows:  newFlowStates(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig builds a provider from the environment configuration. opts
// are applied after the configured values.
func NewFromConfig(cfg config.Config, opts ...Option) *Provider {
	base := []Option{
		WithClientSecret(cfg.GetClientSecret()),
		WithScopes(cfg.GetScopes()...),
		WithPKCE(cfg.GetRequirePKCE()),
		WithCallback(cfg.GetCallbackAddr(), cfg.GetCallbackPath()),
		WithTokenCache(NewFileTokenCache(cfg.GetTokenCacheFile())),
	}
	return New(config.GetIssuerURL(cfg), cfg.GetClientID(), append(base, opts...)...)
}

// Init registers hooks and attempts a silent login with a cached refresh token
func (p *Provider) Init(ctx context.Context, hooks identity.Hooks) (bool, error) {
	p.mu.Lock()
	p.hooks = hooks
	p.mu.Unlock()

	if _, err := p.discover(ctx); err != nil {
		return false, err
	}
	if p.cache == nil {
		return false, nil
	}

	cached, err := p.cache.Load()
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			p.logger.Warn().Err(err).Msg("unable to read token cache")
		}
		return false, nil
	}

	token, err := p.refresh(ctx, cached.RefreshToken)
	if err != nil {
		p.logger.Info().Err(err).Msg("cached session is no longer valid")
		p.clearCache()
		return false, nil
	}
	if err := p.setToken(token); err != nil {
		return false, err
	}

	hooks.AuthSuccess()
	return true, nil
}

// UpdateToken refreshes when the access token expires within minValidity.
// A negative minValidity forces a refresh.
func (p *Provider) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	p.mu.Lock()
	current := p.token
	claims := p.claims
	hooks := p.hooks
	p.mu.Unlock()

	if current == nil {
		return false, errors.ErrNotAuthenticated
	}
	if minValidity >= 0 && claims.ExpiresIn(identity.NowTimeFunc()) > minValidity {
		return false, nil
	}
	if current.RefreshToken == "" {
		return false, errors.ErrNoRefreshToken
	}

	token, err := p.refresh(ctx, current.RefreshToken)
	if err != nil {
		hooks.AuthRefreshError(err)
		return false, fmt.Errorf("%w: %v", errors.ErrRefreshFailed, err)
	}

	p.mu.Lock()
	loggedOut := p.token == nil
	p.mu.Unlock()
	if loggedOut {
		return false, errors.ErrNotAuthenticated
	}

	if err := p.setToken(token); err != nil {
		return false, err
	}
	return true, nil
}

// Logout drops local tokens and ends the session at the identity server.
// Local state is cleared before the server is contacted.
func (p *Provider) Logout(ctx context.Context, redirectTarget string) error {
	p.mu.Lock()
	token := p.token
	conf := p.oauth2Config
	eps := p.endpoints
	hooks := p.hooks
	p.token = nil
	p.claims = nil
	p.stopExpiryTimer()
	p.mu.Unlock()

	p.clearCache()
	hooks.AuthLogout()

	if token == nil || token.RefreshToken == "" || conf == nil {
		return nil
	}
	return p.endSession(ctx, conf, eps, token, redirectTarget)
}

func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil {
		return ""
	}
	return p.token.AccessToken
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

// discover resolves the realm metadata once
func (p *Provider) discover(ctx context.Context) (*oauth2.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oauth2Config != nil {
		return p.oauth2Config, nil
	}

	provider, err := oidc.NewProvider(p.clientContext(ctx), p.issuerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: discover %s: %v", errors.ErrProviderUnavailable, p.issuerURL, err)
	}

	var eps endpoints
	if err := provider.Claims(&eps); err != nil {
		p.logger.Warn().Err(err).Msg("unable to read logout endpoints from discovery")
	}

	endpoint := provider.Endpoint()
	if p.clientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	p.oidcProvider = provider
	p.endpoints = eps
	p.oauth2Config = &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     endpoint,
		Scopes:       p.scopes,
	}
	return p.oauth2Config, nil
}

func (p *Provider) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	conf, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	return conf.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// setToken installs a freshly issued token, caches its refresh token and arms
// the expiry notification
func (p *Provider) setToken(token *oauth2.Token) error {
	claims, err := identity.ParseClaims(token.AccessToken)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.token = token
	p.claims = claims
	p.armExpiryTimer(claims)
	p.mu.Unlock()

	if p.cache != nil && token.RefreshToken != "" {
		idToken, _ := token.Extra("id_token").(string)
		err := p.cache.Save(&CachedToken{
			RefreshToken: token.RefreshToken,
			IDToken:      idToken,
			SavedAt:      identity.NowTimeFunc(),
		})
		if err != nil {
			p.logger.Warn().Err(err).Msg("unable to write token cache")
		}
	}
	return nil
}

// armExpiryTimer must be called with p.mu held
func (p *Provider) armExpiryTimer(claims *identity.Claims) {
	p.stopExpiryTimer()
	if claims.ExpiresAt.IsZero() {
		return
	}
	delay := max(claims.ExpiresIn(identity.NowTimeFunc()), 0)
	p.expiryTimer = time.AfterFunc(delay, p.tokenExpired)
}

// stopExpiryTimer must be called with p.mu held
func (p *Provider) stopExpiryTimer() {
	if p.expiryTimer != nil {
		p.expiryTimer.Stop()
		p.expiryTimer = nil
	}
}

func (p *Provider) tokenExpired() {
	p.mu.Lock()
	hooks := p.hooks
	authenticated := p.token != nil
	p.mu.Unlock()

	if authenticated {
		hooks.TokenExpired()
	}
}

func (p *Provider) clearCache() {
	if p.cache == nil {
		return
	}
	if err := p.cache.Clear(); err != nil {
		p.logger.Warn().Err(err).Msg("unable to clear token cache")
	}
}

// endSession revokes the refresh token when the server advertises revocation,
// otherwise it posts to the end-session endpoint
func (p *Provider) endSession(ctx context.Context, conf *oauth2.Config, eps endpoints, token *oauth2.Token, redirectTarget string) error {
	form := url.Values{}
	form.Set("client_id", conf.ClientID)
	if conf.ClientSecret != "" {
		form.Set("client_secret", conf.ClientSecret)
	}

	var target string
	switch {
	case eps.Revocation != "":
		target = eps.Revocation
		form.Set("token", token.RefreshToken)
		form.Set("token_type_hint", "refresh_token")
	case eps.EndSession != "":
		target = eps.EndSession
		form.Set("refresh_token", token.RefreshToken)
		if redirectTarget != "" {
			form.Set("post_logout_redirect_uri", redirectTarget)
			if idToken, ok := token.Extra("id_token").(string); ok {
				form.Set("id_token_hint", idToken)
			}
		}
	default:
		p.logger.Debug().Msg("identity server advertises no logout endpoint")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("logout endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.httpClient)
}

func (p *Provider) verifier() *oidc.IDTokenVerifier {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oidcProvider.Verifier(&oidc.Config{ClientID: p.clientID})
}
