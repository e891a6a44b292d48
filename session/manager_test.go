package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/identity/fakeprovider"
	"github.com/jrsteele09/go-ticket-client/identity/identitytest"
	"github.com/jrsteele09/go-ticket-client/internal/config"
	ierrors "github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/jrsteele09/go-ticket-client/metrics"
	"github.com/jrsteele09/go-ticket-client/session"
	"github.com/jrsteele09/go-ticket-client/session/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	identity.NowTimeFunc = func() time.Time { return now }
	m.Run()
}

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fire: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Timers() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

func (c *fakeClock) Last() *fakeTimer {
	timers := c.Timers()
	if len(timers) == 0 {
		return nil
	}
	return timers[len(timers)-1]
}

// tokenIn mints an access token expiring d after now
func tokenIn(d time.Duration, opts ...identitytest.TokenOption) string {
	return identitytest.AccessToken(now.Add(d), opts...)
}

type fixture struct {
	provider *fakeprovider.Provider
	clock    *fakeClock
	store    *store.InMemory
	metrics  *metrics.Metrics
	manager  *session.Manager
	events   *[]session.EventType
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	f := &fixture{
		provider: fakeprovider.New(),
		clock:    &fakeClock{},
		store:    store.NewInMemory(),
		metrics:  metrics.New(prometheus.NewRegistry()),
		events:   &[]session.EventType{},
	}
	opts = append([]session.Option{
		session.WithAfterFunc(f.clock.AfterFunc),
		session.WithStore(f.store),
		session.WithMetrics(f.metrics),
		session.WithLogger(zerolog.Nop()),
	}, opts...)
	f.manager = session.NewManager(f.provider, opts...)
	var mu sync.Mutex
	f.manager.Subscribe(func(e session.Event) {
		mu.Lock()
		defer mu.Unlock()
		*f.events = append(*f.events, e.Type)
	})
	t.Cleanup(f.manager.Close)
	return f
}

func (f *fixture) login(t *testing.T, token string) {
	t.Helper()
	f.provider.SetLoginResult(token, nil)
	_, err := f.manager.Init(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.manager.Login(context.Background(), ""))
}

func TestRenewalDelay(t *testing.T) {
	lead, floor := 20*time.Second, 5*time.Second
	tests := []struct {
		name    string
		expires time.Duration
		want    time.Duration
	}{
		{"expiry in 25s floors at 5s", 25 * time.Second, 5 * time.Second},
		{"expiry in 5 minutes", 5 * time.Minute, 280 * time.Second},
		{"expiry in 26s", 26 * time.Second, 6 * time.Second},
		{"already expired", -time.Minute, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, session.RenewalDelay(now.Add(tt.expires), now, lead, floor))
		})
	}
}

func TestManager_InitSilentSuccess(t *testing.T) {
	f := newFixture(t)
	token := tokenIn(25*time.Second, identitytest.WithSubject("kc-9"))
	f.provider.SetInitResult(token, nil)

	ok, err := f.manager.Init(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, token, f.manager.Token())
	require.Equal(t, "kc-9", f.manager.Subject())
	require.Equal(t, []session.EventType{session.EventAuthenticated}, *f.events)

	last := f.clock.Last()
	require.NotNil(t, last)
	require.Equal(t, 5000*time.Millisecond, last.delay)

	snap, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, snap.Authenticated)
	require.Equal(t, token, snap.Token)
	require.Equal(t, "kc-9", snap.User.ID)
}

func TestManager_InitUnauthenticatedClearsSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(context.Background(), store.Snapshot{Token: "stale", Authenticated: true}))
	f.provider.SetInitResult("", nil)

	ok, err := f.manager.Init(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, f.manager.Token())
	require.Empty(t, f.clock.Timers())

	_, err = f.manager.Snapshot(context.Background())
	require.ErrorIs(t, err, ierrors.ErrSessionNotFound)
}

func TestManager_InitProviderErrorKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	user := &identity.User{ID: "kc-9", Username: "jdoe"}
	require.NoError(t, f.store.Save(context.Background(), store.Snapshot{User: user, Token: "stale", Authenticated: true}))
	f.provider.SetInitResult("", ierrors.ErrProviderUnavailable)

	ok, err := f.manager.Init(context.Background())
	require.ErrorIs(t, err, ierrors.ErrProviderUnavailable)
	require.False(t, ok)
	require.False(t, f.manager.IsAuthenticated())
	require.Empty(t, f.manager.Token())

	snap, err := f.manager.Snapshot(context.Background())
	require.NoError(t, err)
	require.True(t, snap.Authenticated)
	require.Equal(t, "kc-9", snap.User.ID)
}

func TestManager_Snapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Snapshot(context.Background())
	require.ErrorIs(t, err, ierrors.ErrSessionNotFound)

	token := tokenIn(time.Minute, identitytest.WithSubject("kc-7"))
	f.login(t, token)
	snap, err := f.manager.Snapshot(context.Background())
	require.NoError(t, err)
	require.True(t, snap.Authenticated)
	require.Equal(t, token, snap.Token)
	require.Equal(t, "kc-7", snap.User.ID)

	require.NoError(t, f.manager.Logout(context.Background(), ""))
	_, err = f.manager.Snapshot(context.Background())
	require.ErrorIs(t, err, ierrors.ErrSessionNotFound)
}

func TestManager_Login(t *testing.T) {
	f := newFixture(t)
	f.login(t, tokenIn(time.Hour, identitytest.WithRealmRoles("technician")))

	require.True(t, f.manager.IsAuthenticated())
	require.True(t, f.manager.HasRole(identity.RoleTechnician))
	require.False(t, f.manager.HasRole(identity.RoleAdmin))
	require.True(t, f.manager.HasAnyRole(identity.RoleAdmin, identity.RoleTechnician))
	require.False(t, f.manager.HasAnyRole())
	require.Equal(t, []session.EventType{session.EventAuthenticated}, *f.events)
	require.Equal(t, time.Hour-20*time.Second, f.clock.Last().delay)
}

func TestManager_LoginFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.SetLoginResult("", ierrors.ErrInvalidNonce)

	err := f.manager.Login(context.Background(), "")
	require.ErrorIs(t, err, ierrors.ErrInvalidNonce)
	require.False(t, f.manager.IsAuthenticated())
	require.Empty(t, *f.events)
}

func TestManager_RescheduleCancelsPrevious(t *testing.T) {
	f := newFixture(t)
	f.login(t, tokenIn(time.Minute))

	before := len(f.clock.Timers())
	f.manager.ScheduleRenewal()
	f.manager.ScheduleRenewal()

	timers := f.clock.Timers()
	require.Len(t, timers, before+2)
	for _, tm := range timers[:len(timers)-1] {
		require.True(t, tm.stopped)
	}
	require.False(t, timers[len(timers)-1].stopped)

	// A timer that fired after being replaced does nothing
	timers[0].fire()
	require.Empty(t, f.provider.UpdateCalls())
}

func TestManager_RenewalFires(t *testing.T) {
	f := newFixture(t)
	f.login(t, tokenIn(25*time.Second))
	renewed := tokenIn(5 * time.Minute)
	f.provider.SetUpdateResult(renewed, nil)

	f.clock.Last().fire()

	require.Equal(t, []time.Duration{30 * time.Second}, f.provider.UpdateCalls())
	require.Equal(t, renewed, f.manager.Token())
	require.Equal(t, 280*time.Second, f.clock.Last().delay)
	require.Equal(t, []session.EventType{session.EventAuthenticated, session.EventRefreshed}, *f.events)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues(metrics.RefreshIssued)))

	snap, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, renewed, snap.Token)
}

func TestManager_RenewalFailureLogsOut(t *testing.T) {
	f := newFixture(t)
	f.login(t, tokenIn(25*time.Second))
	f.provider.SetUpdateResult("", errors.New("invalid_grant"))

	f.clock.Last().fire()

	require.False(t, f.manager.IsAuthenticated())
	require.Empty(t, f.manager.Token())
	require.Equal(t, 1, f.provider.LogoutCalls())
	require.Equal(t, []session.EventType{session.EventAuthenticated, session.EventLoggedOut}, *f.events)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ForcedLogouts.WithLabelValues(metrics.LogoutRenewalFailed)))

	_, err := f.store.Load(context.Background())
	require.ErrorIs(t, err, ierrors.ErrSessionNotFound)
}

func TestManager_Logout(t *testing.T) {
	t.Run("clears state and cancels renewal", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, tokenIn(time.Minute))
		timer := f.clock.Last()

		require.NoError(t, f.manager.Logout(context.Background(), ""))
		require.True(t, timer.stopped)
		require.False(t, f.manager.IsAuthenticated())
		require.Equal(t, []session.EventType{session.EventAuthenticated, session.EventLoggedOut}, *f.events)
	})

	t.Run("provider failure still clears state", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, tokenIn(time.Minute))
		timer := f.clock.Last()
		providerErr := errors.New("end session unavailable")
		f.provider.SetLogoutError(providerErr)

		err := f.manager.Logout(context.Background(), "")
		require.ErrorIs(t, err, providerErr)
		require.True(t, timer.stopped)
		require.False(t, f.manager.IsAuthenticated())
		require.Empty(t, f.manager.Token())
		require.Nil(t, f.manager.Session().User)

		_, err = f.store.Load(context.Background())
		require.ErrorIs(t, err, ierrors.ErrSessionNotFound)

		// The fired timer of the cancelled renewal must not resurrect anything
		timer.fire()
		require.Empty(t, f.provider.UpdateCalls())
	})
}

func TestManager_Refresh(t *testing.T) {
	t.Run("not needed", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, tokenIn(time.Hour))
		f.provider.SetUpdateResult(tokenIn(2*time.Hour), nil)

		require.False(t, f.manager.Refresh(context.Background()))
		require.Equal(t, []time.Duration{30 * time.Second}, f.provider.UpdateCalls())
	})

	t.Run("issued", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, tokenIn(10*time.Second))
		next := tokenIn(time.Hour)
		f.provider.SetUpdateResult(next, nil)

		require.True(t, f.manager.Refresh(context.Background()))
		require.Equal(t, next, f.manager.Token())
		require.Equal(t, time.Hour-20*time.Second, f.clock.Last().delay)
	})

	t.Run("provider error is swallowed", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, tokenIn(10*time.Second))
		f.provider.SetUpdateResult("", errors.New("network down"))

		require.False(t, f.manager.Refresh(context.Background()))
		require.True(t, f.manager.IsAuthenticated(), "refresh failure alone does not log out")
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues(metrics.RefreshFailed)))
	})
}

func TestManager_TokenExpiredHook(t *testing.T) {
	t.Run("refresh succeeds", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, tokenIn(-time.Second))
		next := tokenIn(time.Hour)
		f.provider.SetUpdateResult(next, nil)

		f.provider.ExpireToken()
		require.Equal(t, next, f.manager.Token())
		require.Equal(t, 0, f.provider.LogoutCalls())
	})

	t.Run("refresh fails", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, tokenIn(-time.Second))
		f.provider.SetUpdateResult("", errors.New("invalid_grant"))

		f.provider.ExpireToken()
		require.False(t, f.manager.IsAuthenticated())
		require.Equal(t, 1, f.provider.LogoutCalls())
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ForcedLogouts.WithLabelValues(metrics.LogoutTokenExpired)))
	})
}

func TestManager_Subscribe(t *testing.T) {
	f := newFixture(t)
	var got []session.Event
	unsubscribe := f.manager.Subscribe(func(e session.Event) { got = append(got, e) })

	f.login(t, tokenIn(time.Hour, identitytest.WithUsername("alice")))
	require.Len(t, got, 1)
	require.Equal(t, "alice", got[0].User.Username)

	unsubscribe()
	require.NoError(t, f.manager.Logout(context.Background(), ""))
	require.Len(t, got, 1)
}

// gatedProvider blocks UpdateToken until release is closed
type gatedProvider struct {
	*fakeprovider.Provider
	release chan struct{}
}

func (p *gatedProvider) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	<-p.release
	return p.Provider.UpdateToken(ctx, minValidity)
}

func TestManager_ConcurrentRefresh(t *testing.T) {
	run := func(t *testing.T, opts ...session.Option) int {
		fp := fakeprovider.New()
		p := &gatedProvider{Provider: fp, release: make(chan struct{})}
		fp.SetLoginResult(tokenIn(10*time.Second), nil)
		opts = append([]session.Option{session.WithAfterFunc((&fakeClock{}).AfterFunc), session.WithLogger(zerolog.Nop())}, opts...)
		m := session.NewManager(p, opts...)
		defer m.Close()
		_, err := m.Init(context.Background())
		require.NoError(t, err)
		require.NoError(t, m.Login(context.Background(), ""))
		fp.SetUpdateResult(tokenIn(time.Hour), nil)

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Refresh(context.Background())
			}()
		}
		time.Sleep(100 * time.Millisecond)
		close(p.release)
		wg.Wait()
		return len(fp.UpdateCalls())
	}

	t.Run("default issues one provider call per caller", func(t *testing.T) {
		require.Equal(t, 5, run(t))
	})

	t.Run("shared refresh collapses concurrent callers", func(t *testing.T) {
		require.Equal(t, 1, run(t, session.WithSharedRefresh()))
	})

	t.Run("shared refresh enabled from the environment", func(t *testing.T) {
		t.Setenv("SHARED_REFRESH", "true")
		require.Equal(t, 1, run(t, session.WithConfig(config.OAuth{})))
	})
}
