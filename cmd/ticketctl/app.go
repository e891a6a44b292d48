package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jrsteele09/go-ticket-client/gateway"
	"github.com/jrsteele09/go-ticket-client/identity/oidcprovider"
	"github.com/jrsteele09/go-ticket-client/internal/config"
	"github.com/jrsteele09/go-ticket-client/internal/redisclient"
	"github.com/jrsteele09/go-ticket-client/metrics"
	"github.com/jrsteele09/go-ticket-client/reconcile"
	"github.com/jrsteele09/go-ticket-client/session"
	"github.com/jrsteele09/go-ticket-client/session/store"
	"github.com/jrsteele09/go-ticket-client/tickets"
	"github.com/jrsteele09/go-ticket-client/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// app holds the wired client stack for one command
type app struct {
	cfg        config.Config
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	redis      *redis.Client
	session    *session.Manager
	client     *gateway.Client
	reconciler *reconcile.Reconciler
	tickets    *tickets.API
	users      *users.API
	out        io.Writer
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		out:      out,
	}
	a.metrics = metrics.New(a.registry)

	rdb, err := redisclient.New(ctx, cfg.GetRedisURL())
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using local stores")
	}
	a.redis = rdb

	sessionStore := store.Store(store.NewFile(cfg.GetSessionFile()))
	cooldown := reconcile.CooldownStore(reconcile.NewInMemoryCooldown())
	if a.redis != nil {
		sessionStore = store.NewRedis(a.redis, cfg.GetClientID(), store.WithTTL(cfg.GetSessionTTL()))
		cooldown = reconcile.NewRedisCooldown(a.redis)
	}

	provider := oidcprovider.NewFromConfig(cfg, oidcprovider.WithLogger(log.Logger))
	a.session = session.NewManager(provider,
		session.WithStore(sessionStore),
		session.WithConfig(cfg),
		session.WithMetrics(a.metrics),
		session.WithLogger(log.Logger),
	)

	a.client = gateway.New(cfg.GetAPIBaseURL(), a.session,
		gateway.WithMetrics(a.metrics),
		gateway.WithLogger(log.Logger),
	)
	a.tickets = tickets.NewAPI(a.client)
	a.users = users.NewAPI(a.client)
	a.reconciler = reconcile.New(a.users, a.session,
		reconcile.WithCooldownStore(cooldown),
		reconcile.WithWindow(cfg.GetSyncCooldown()),
		reconcile.WithMetrics(a.metrics),
		reconcile.WithLogger(log.Logger),
	)
	a.client.SetReconciler(a.reconciler)
	return a, nil
}

func (a *app) Close() {
	a.session.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}
}

// requireSession restores the session silently and fails when there is none
func (a *app) requireSession(ctx context.Context) error {
	ok, err := a.session.Init(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return fmt.Errorf("not signed in, run \"ticketctl login\" first")
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
