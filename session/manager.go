// Package session owns the authenticated session: the current access token,
// its proactive renewal and the login and logout transitions.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/internal/config"
	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/jrsteele09/go-ticket-client/metrics"
	"github.com/jrsteele09/go-ticket-client/session/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Session is a copy of the current session state
type Session struct {
	AccessToken   string
	Claims        *identity.Claims
	User          *identity.User
	Authenticated bool
}

type Manager struct {
	provider         identity.Provider
	store            store.Store
	logger           zerolog.Logger
	metrics          *metrics.Metrics
	afterFunc        AfterFunc
	refreshThreshold time.Duration
	renewalLead      time.Duration
	minRenewalDelay  time.Duration
	sharedRefresh    bool
	refreshGroup     singleflight.Group

	mu             sync.Mutex
	session        Session
	timer          Timer
	timerGen       uint64
	subscribers    map[int]func(Event)
	nextSubscriber int
}

type Option func(*Manager)

func WithStore(s store.Store) Option {
	return func(m *Manager) { m.store = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithAfterFunc replaces time.AfterFunc for scheduling renewals
func WithAfterFunc(fn AfterFunc) Option {
	return func(m *Manager) { m.afterFunc = fn }
}

// WithConfig takes the refresh threshold, renewal timings and shared refresh
// switch from cfg
func WithConfig(cfg config.OAuthConfig) Option {
	return func(m *Manager) {
		m.refreshThreshold = cfg.GetRefreshThreshold()
		m.renewalLead = cfg.GetRenewalLead()
		m.minRenewalDelay = cfg.GetMinRenewalDelay()
		if cfg.GetSharedRefresh() {
			m.sharedRefresh = true
		}
	}
}

// WithSharedRefresh makes concurrent Refresh calls share a single provider call
func WithSharedRefresh() Option {
	return func(m *Manager) { m.sharedRefresh = true }
}

func NewManager(provider identity.Provider, opts ...Option) *Manager {
	defaults := config.OAuth{}
	m := &Manager{
		provider:         provider,
		store:            store.NewInMemory(),
		logger:           log.Logger,
		afterFunc:        realAfterFunc,
		refreshThreshold: defaults.GetRefreshThreshold(),
		renewalLead:      defaults.GetRenewalLead(),
		minRenewalDelay:  defaults.GetMinRenewalDelay(),
		subscribers:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init runs the provider's silent authentication check and reports whether
// the process starts authenticated
func (m *Manager) Init(ctx context.Context) (bool, error) {
	ok, err := m.provider.Init(ctx, identity.Hooks{
		OnAuthSuccess:  func() { m.authenticated(context.Background()) },
		OnAuthLogout:   func() { m.clearLocal(context.Background()) },
		OnTokenExpired: m.tokenExpired,
		OnAuthRefreshError: func(err error) {
			m.logger.Warn().Err(err).Msg("identity provider reported a refresh error")
		},
	})
	if err != nil {
		// The provider could not answer, so the persisted session may still be valid
		return false, err
	}
	if !ok {
		m.clearSnapshot(ctx)
		return false, nil
	}

	m.authenticated(ctx)
	return true, nil
}

// Close cancels the renewal timer and drops all subscribers
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimer()
	m.subscribers = make(map[int]func(Event))
}

// Login runs the provider's interactive flow
func (m *Manager) Login(ctx context.Context, redirectTarget string) error {
	if err := m.provider.Login(ctx, redirectTarget); err != nil {
		return err
	}
	if !m.authenticated(ctx) {
		return errors.Wrapf(errors.ErrLoginFailed, "provider returned no token")
	}
	return nil
}

// Logout clears the local session and renewal timer, then ends the provider
// session. Local state is cleared even when the provider fails.
func (m *Manager) Logout(ctx context.Context, redirectTarget string) error {
	m.clearLocal(ctx)
	if err := m.provider.Logout(ctx, redirectTarget); err != nil {
		return errors.Wrapf(err, "provider logout")
	}
	return nil
}

// Refresh asks the provider for a new token if the current one is close to
// expiry. It reports whether a new token was issued; failures report false.
func (m *Manager) Refresh(ctx context.Context) bool {
	if !m.sharedRefresh {
		return m.refresh(ctx)
	}
	v, _, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.refresh(ctx), nil
	})
	return v.(bool)
}

func (m *Manager) refresh(ctx context.Context) bool {
	refreshed, err := m.provider.UpdateToken(ctx, m.refreshThreshold)
	if err != nil {
		m.logger.Warn().Err(err).Msg("token refresh failed")
		m.metrics.IncRefresh(metrics.RefreshFailed)
		return false
	}
	if !refreshed {
		m.metrics.IncRefresh(metrics.RefreshNotNeeded)
		return false
	}

	m.metrics.IncRefresh(metrics.RefreshIssued)
	m.syncFromProvider(ctx)
	m.ScheduleRenewal()
	return true
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.AccessToken
}

func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Snapshot returns the last persisted session, which may predate this process.
// It returns errors.ErrSessionNotFound when nothing is stored.
func (m *Manager) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	return m.store.Load(ctx)
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Authenticated
}

// Subject returns the token subject, or "" when unauthenticated
func (m *Manager) Subject() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Claims == nil {
		return ""
	}
	return m.session.Claims.Subject
}

func (m *Manager) HasRole(role identity.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.User != nil && m.session.User.HasRole(role)
}

func (m *Manager) HasAnyRole(roles ...identity.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.User == nil {
		return false
	}
	return slices.ContainsFunc(roles, m.session.User.HasRole)
}

// authenticated syncs from the provider and schedules renewal. It reports
// whether the provider holds a token.
func (m *Manager) authenticated(ctx context.Context) bool {
	if !m.syncFromProvider(ctx) {
		return false
	}
	m.ScheduleRenewal()
	return true
}

// syncFromProvider copies the provider's token and claims into the session,
// persists a snapshot and publishes the resulting transition
func (m *Manager) syncFromProvider(ctx context.Context) bool {
	token := m.provider.Token()
	claims := m.provider.Claims()
	if token == "" || claims == nil {
		return false
	}
	user := claims.User()

	m.mu.Lock()
	wasAuthenticated := m.session.Authenticated
	changed := m.session.AccessToken != token
	m.session = Session{
		AccessToken:   token,
		Claims:        claims,
		User:          &user,
		Authenticated: true,
	}
	m.mu.Unlock()

	err := m.store.Save(ctx, store.Snapshot{
		User:          &user,
		Token:         token,
		Authenticated: true,
		SavedAt:       identity.NowTimeFunc(),
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("unable to persist session")
	}

	switch {
	case !wasAuthenticated:
		m.logger.Info().Str("user", user.Username).Msg("authenticated")
		m.publish(Event{Type: EventAuthenticated, User: &user})
	case changed:
		m.logger.Debug().Str("user", user.Username).Time("expires_at", claims.ExpiresAt).Msg("token refreshed")
		m.publish(Event{Type: EventRefreshed, User: &user})
	}
	return true
}

// clearLocal drops the session, cancels renewal and clears the snapshot
func (m *Manager) clearLocal(ctx context.Context) {
	m.mu.Lock()
	wasAuthenticated := m.session.Authenticated
	m.session = Session{}
	m.stopTimer()
	m.mu.Unlock()

	m.clearSnapshot(ctx)
	if wasAuthenticated {
		m.logger.Info().Msg("logged out")
		m.publish(Event{Type: EventLoggedOut})
	}
}

func (m *Manager) clearSnapshot(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("unable to clear persisted session")
	}
}

// tokenExpired handles the provider's expiry notification
func (m *Manager) tokenExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	if m.Refresh(ctx) {
		return
	}
	m.logger.Warn().Msg("token expired and could not be refreshed, logging out")
	m.metrics.IncForcedLogout(metrics.LogoutTokenExpired)
	if err := m.Logout(ctx, ""); err != nil {
		m.logger.Warn().Err(err).Msg("logout after token expiry")
	}
}
