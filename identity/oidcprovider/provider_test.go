package oidcprovider_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/identity/identitytest"
	"github.com/jrsteele09/go-ticket-client/identity/oidcprovider"
	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// followBrowser behaves like a browser that is already logged in at the realm
func followBrowser(t *testing.T) func(string) error {
	return func(authURL string) error {
		resp, err := http.Get(authURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
}

func newProvider(t *testing.T, realm *identitytest.Realm, opts ...oidcprovider.Option) (*oidcprovider.Provider, *oidcprovider.FileTokenCache) {
	t.Helper()
	cache := oidcprovider.NewFileTokenCache(filepath.Join(t.TempDir(), "token.json"))
	opts = append([]oidcprovider.Option{
		oidcprovider.WithCallback("127.0.0.1:0", "/callback"),
		oidcprovider.WithBrowser(followBrowser(t)),
		oidcprovider.WithTokenCache(cache),
		oidcprovider.WithHTTPClient(http.DefaultClient),
		oidcprovider.WithLogger(zerolog.Nop()),
	}, opts...)
	return oidcprovider.New(realm.Issuer(), realm.ClientID, opts...), cache
}

func TestProvider_InitWithoutCache(t *testing.T) {
	realm := identitytest.NewRealm(t)
	p, _ := newProvider(t, realm)

	ok, err := p.Init(context.Background(), identity.Hooks{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, p.Token())
	require.Nil(t, p.Claims())
}

func TestProvider_InitDiscoveryFailure(t *testing.T) {
	p := oidcprovider.New("http://127.0.0.1:1/realms/none", "ticketctl", oidcprovider.WithLogger(zerolog.Nop()))

	ok, err := p.Init(context.Background(), identity.Hooks{})
	require.False(t, ok)
	require.ErrorIs(t, err, errors.ErrProviderUnavailable)
}

func TestProvider_Login(t *testing.T) {
	realm := identitytest.NewRealm(t)
	realm.SetTokenOptions(identitytest.WithSubject("kc-42"), identitytest.WithRealmRoles("user", "technician"))

	var successes atomic.Int32
	p, cache := newProvider(t, realm)
	_, err := p.Init(context.Background(), identity.Hooks{OnAuthSuccess: func() { successes.Add(1) }})
	require.NoError(t, err)

	require.NoError(t, p.Login(context.Background(), ""))
	require.NotEmpty(t, p.Token())
	require.EqualValues(t, 1, successes.Load())

	claims := p.Claims()
	require.Equal(t, "kc-42", claims.Subject)
	require.Equal(t, []identity.Role{identity.RoleUser, identity.RoleTechnician}, claims.Roles())

	cached, err := cache.Load()
	require.NoError(t, err)
	require.NotEmpty(t, cached.RefreshToken)
	require.NotEmpty(t, cached.IDToken)
}

func TestProvider_LoginIgnoresUnknownState(t *testing.T) {
	realm := identitytest.NewRealm(t)
	var forgedStatus int
	forgedFirst := func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=abc&state=forged")
		if err != nil {
			return err
		}
		forgedStatus = resp.StatusCode
		_ = resp.Body.Close()
		return followBrowser(t)(authURL)
	}
	p, _ := newProvider(t, realm, oidcprovider.WithBrowser(forgedFirst))

	require.NoError(t, p.Login(context.Background(), ""))
	require.Equal(t, http.StatusBadRequest, forgedStatus)
	require.NotEmpty(t, p.Token())
}

func TestProvider_LoginRejectsStatelessCallback(t *testing.T) {
	realm := identitytest.NewRealm(t)
	stateless := func(authURL string) error {
		u, _ := url.Parse(authURL)
		resp, err := http.Get(u.Query().Get("redirect_uri") + "?error=access_denied")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return followBrowser(t)(authURL)
	}
	p, _ := newProvider(t, realm, oidcprovider.WithBrowser(stateless))

	require.NoError(t, p.Login(context.Background(), ""))
}

func TestProvider_LoginReportsAuthorizationError(t *testing.T) {
	realm := identitytest.NewRealm(t)
	denied := func(authURL string) error {
		u, _ := url.Parse(authURL)
		q := url.Values{
			"state":             {u.Query().Get("state")},
			"error":             {"access_denied"},
			"error_description": {"nope"},
		}
		resp, err := http.Get(u.Query().Get("redirect_uri") + "?" + q.Encode())
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
	p, _ := newProvider(t, realm, oidcprovider.WithBrowser(denied))

	err := p.Login(context.Background(), "")
	require.ErrorIs(t, err, errors.ErrLoginFailed)
	require.Contains(t, err.Error(), "access_denied")
}

func TestProvider_SilentInitFromCache(t *testing.T) {
	realm := identitytest.NewRealm(t)
	p, cache := newProvider(t, realm)
	require.NoError(t, cache.Save(&oidcprovider.CachedToken{RefreshToken: realm.IssueRefreshToken()}))

	var successes atomic.Int32
	ok, err := p.Init(context.Background(), identity.Hooks{OnAuthSuccess: func() { successes.Add(1) }})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, p.Token())
	require.Equal(t, 1, realm.RefreshCalls())
	require.EqualValues(t, 1, successes.Load())
}

func TestProvider_SilentInitWithRevokedToken(t *testing.T) {
	realm := identitytest.NewRealm(t)
	p, cache := newProvider(t, realm)
	require.NoError(t, cache.Save(&oidcprovider.CachedToken{RefreshToken: "revoked"}))

	ok, err := p.Init(context.Background(), identity.Hooks{})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = cache.Load()
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestProvider_UpdateToken(t *testing.T) {
	realm := identitytest.NewRealm(t)
	p, _ := newProvider(t, realm)

	_, err := p.UpdateToken(context.Background(), 30*time.Second)
	require.ErrorIs(t, err, errors.ErrNotAuthenticated)

	var refreshErrs atomic.Int32
	_, err = p.Init(context.Background(), identity.Hooks{OnAuthRefreshError: func(error) { refreshErrs.Add(1) }})
	require.NoError(t, err)
	require.NoError(t, p.Login(context.Background(), ""))
	first := p.Token()

	t.Run("not needed while validity exceeds threshold", func(t *testing.T) {
		refreshed, err := p.UpdateToken(context.Background(), 30*time.Second)
		require.NoError(t, err)
		require.False(t, refreshed)
		require.Equal(t, 0, realm.RefreshCalls())
	})

	t.Run("refreshes when expiring within threshold", func(t *testing.T) {
		refreshed, err := p.UpdateToken(context.Background(), 10*time.Minute)
		require.NoError(t, err)
		require.True(t, refreshed)
		require.NotEqual(t, first, p.Token())
		require.Equal(t, 1, realm.RefreshCalls())
	})

	t.Run("refresh failure", func(t *testing.T) {
		realm.FailRefresh(true)
		refreshed, err := p.UpdateToken(context.Background(), -1)
		require.ErrorIs(t, err, errors.ErrRefreshFailed)
		require.False(t, refreshed)
		require.EqualValues(t, 1, refreshErrs.Load())
	})
}

func TestProvider_TokenExpiredHook(t *testing.T) {
	realm := identitytest.NewRealm(t)
	realm.AccessTTL = 2 * time.Second
	p, _ := newProvider(t, realm)

	var expired atomic.Int32
	_, err := p.Init(context.Background(), identity.Hooks{OnTokenExpired: func() { expired.Add(1) }})
	require.NoError(t, err)
	require.NoError(t, p.Login(context.Background(), ""))

	require.Eventually(t, func() bool { return expired.Load() == 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestProvider_Logout(t *testing.T) {
	t.Run("end session endpoint", func(t *testing.T) {
		realm := identitytest.NewRealm(t)
		p, cache := newProvider(t, realm)
		var logouts atomic.Int32
		_, err := p.Init(context.Background(), identity.Hooks{OnAuthLogout: func() { logouts.Add(1) }})
		require.NoError(t, err)
		require.NoError(t, p.Login(context.Background(), ""))
		cached, err := cache.Load()
		require.NoError(t, err)

		require.NoError(t, p.Logout(context.Background(), ""))
		require.Empty(t, p.Token())
		require.EqualValues(t, 1, logouts.Load())

		forms := realm.LogoutForms()
		require.Len(t, forms, 1)
		require.Equal(t, "/realms/test-realm/protocol/openid-connect/logout", forms[0].Get("endpoint"))
		require.Equal(t, realm.ClientID, forms[0].Get("client_id"))
		require.Equal(t, cached.RefreshToken, forms[0].Get("refresh_token"))

		_, err = cache.Load()
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("revocation endpoint when advertised", func(t *testing.T) {
		realm := identitytest.NewRealm(t)
		realm.AdvertiseRevocation(true)
		p, _ := newProvider(t, realm)
		_, err := p.Init(context.Background(), identity.Hooks{})
		require.NoError(t, err)
		require.NoError(t, p.Login(context.Background(), ""))

		require.NoError(t, p.Logout(context.Background(), ""))
		forms := realm.LogoutForms()
		require.Len(t, forms, 1)
		require.Equal(t, "/realms/test-realm/protocol/openid-connect/revoke", forms[0].Get("endpoint"))
		require.Equal(t, "refresh_token", forms[0].Get("token_type_hint"))
		require.NotEmpty(t, forms[0].Get("token"))
	})

	t.Run("server failure still clears local tokens", func(t *testing.T) {
		realm := identitytest.NewRealm(t)
		realm.FailLogout(true)
		p, cache := newProvider(t, realm)
		_, err := p.Init(context.Background(), identity.Hooks{})
		require.NoError(t, err)
		require.NoError(t, p.Login(context.Background(), ""))

		require.Error(t, p.Logout(context.Background(), ""))
		require.Empty(t, p.Token())
		require.Nil(t, p.Claims())
		_, err = cache.Load()
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("not logged in", func(t *testing.T) {
		realm := identitytest.NewRealm(t)
		p, _ := newProvider(t, realm)
		require.NoError(t, p.Logout(context.Background(), ""))
		require.Empty(t, realm.LogoutForms())
	})
}
