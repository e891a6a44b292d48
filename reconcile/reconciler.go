// Package reconcile makes sure the authenticated identity has a backend user
// record before ticket and profile requests are sent.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-ticket-client/gateway"
	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/jrsteele09/go-ticket-client/metrics"
	"github.com/jrsteele09/go-ticket-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultWindow = 30 * time.Second

// SyncAPI is the subset of the users API the reconciler calls
type SyncAPI interface {
	CheckExists(ctx context.Context) (*users.ExistsResponse, error)
	ForceSync(ctx context.Context) (*users.User, error)
	CreateMinimal(ctx context.Context) (*users.User, error)
	Me(ctx context.Context) (*users.User, error)
}

// SubjectSource reports the subject of the current session, "" when signed out
type SubjectSource interface {
	Subject() string
}

type Reconciler struct {
	api      SyncAPI
	subjects SubjectSource
	cooldown CooldownStore
	window   time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

var _ gateway.Reconciler = (*Reconciler)(nil)

type Option func(*Reconciler)

func WithCooldownStore(s CooldownStore) Option {
	return func(r *Reconciler) { r.cooldown = s }
}

// WithWindow sets how long an attempt suppresses the next one
func WithWindow(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.window = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

func New(api SyncAPI, subjects SubjectSource, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:      api,
		subjects: subjects,
		cooldown: NewInMemoryCooldown(),
		window:   DefaultWindow,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AppliesTo reports whether requests to path are reconciled: the ticket
// endpoints and the current user endpoint.
func AppliesTo(path string) bool {
	if path == users.PathMe {
		return true
	}
	rest, ok := strings.CutPrefix(path, "/tickets")
	return ok && (rest == "" || strings.HasPrefix(rest, "/"))
}

// BeforeRequest checks, at most once per window, that the backend knows the
// session subject, and syncs it when it does not. Failures are logged only.
func (r *Reconciler) BeforeRequest(ctx context.Context, path string) {
	if !AppliesTo(path) {
		return
	}
	subject := r.subjects.Subject()
	if subject == "" {
		return
	}
	ctx = gateway.WithoutReconciliation(ctx)
	logger := r.logger.With().Str("subject", subject).Str("path", path).Logger()

	claimed, err := r.cooldown.TryMark(ctx, subject, identity.NowTimeFunc(), r.window)
	if err != nil {
		logger.Warn().Err(err).Msg("claim sync cooldown, skipping reconciliation")
		return
	}
	if !claimed {
		r.metrics.IncUserSync(metrics.SyncSuppressed)
		logger.Debug().Msg("user sync suppressed by cooldown")
		return
	}

	res, err := r.api.CheckExists(ctx)
	if err != nil {
		r.metrics.IncUserSync(metrics.SyncFailed)
		logFailure(logger, err, "check user exists")
		return
	}
	if res.Exists {
		r.metrics.IncUserSync(metrics.SyncExists)
		logger.Debug().Msg("backend user exists")
		return
	}

	if _, err := r.sync(ctx, logger); err != nil {
		logFailure(logger, err, "user sync")
	}
}

// RecoverUserNotFound runs the sync fallback chain after the backend
// rejected a request for a missing user
func (r *Reconciler) RecoverUserNotFound(ctx context.Context) error {
	ctx = gateway.WithoutReconciliation(ctx)
	logger := r.logger.With().Str("subject", r.subjects.Subject()).Logger()
	_, err := r.sync(ctx, logger)
	return err
}

// EnsureUserExists returns the backend user for the session, creating it if needed
func (r *Reconciler) EnsureUserExists(ctx context.Context) (*users.User, error) {
	ctx = gateway.WithoutReconciliation(ctx)
	logger := r.logger.With().Str("subject", r.subjects.Subject()).Logger()

	res, err := r.api.CheckExists(ctx)
	if err != nil {
		logFailure(logger, err, "check user exists")
	}
	if err == nil && res.Exists {
		r.metrics.IncUserSync(metrics.SyncExists)
		return r.api.Me(ctx)
	}
	return r.sync(ctx, logger)
}

// sync tries force-sync, then create-minimal
func (r *Reconciler) sync(ctx context.Context, logger zerolog.Logger) (*users.User, error) {
	u, forceErr := r.api.ForceSync(ctx)
	if forceErr == nil {
		r.metrics.IncUserSync(metrics.SyncForceSynced)
		logger.Info().Str("user_id", u.ID).Msg("backend user synced")
		return u, nil
	}
	logFailure(logger, forceErr, "force sync")

	u, minimalErr := r.api.CreateMinimal(ctx)
	if minimalErr == nil {
		r.metrics.IncUserSync(metrics.SyncMinimalCreated)
		logger.Info().Str("user_id", u.ID).Msg("minimal backend user created")
		return u, nil
	}
	logFailure(logger, minimalErr, "create minimal user")

	r.metrics.IncUserSync(metrics.SyncFailed)
	return nil, errors.Wrapf(errors.ErrUserSyncFailed, "all sync methods failed: force sync: %v, create minimal: %v", forceErr, minimalErr)
}

// logFailure records the status so a permission problem can be told apart
// from a missing user or an unreachable backend
func logFailure(logger zerolog.Logger, err error, action string) {
	ev := logger.Warn().Err(err)
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		ev = ev.Int("status", apiErr.StatusCode)
	}
	ev.Msg(action + " failed")
}
