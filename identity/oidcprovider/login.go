package oidcprovider

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"golang.org/x/oauth2"
)

const loginCompletePage = `<!DOCTYPE html>
<html><head><title>ticketctl</title></head>
<body><p>Login complete. You can close this window.</p></body></html>`

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// Login runs the authorization code flow. A loopback server receives the
// redirect; redirectTarget, if set, is where the browser is sent afterwards.
func (p *Provider) Login(ctx context.Context, redirectTarget string) error {
	conf, err := p.discover(ctx)
	if err != nil {
		return err
	}

	now := identity.NowTimeFunc()
	p.flows.Purge(now, flowMaxAge)

	state := uuid.NewString()
	fs := flowState{
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        uuid.NewString(),
		ReturnURL:    redirectTarget,
		CreatedAt:    now,
	}
	if err := p.flows.Upsert(state, fs); err != nil {
		return errors.Wrapf(errors.ErrLoginFailed, "store flow state: %v", err)
	}

	ln, err := net.Listen("tcp", p.callbackAddr)
	if err != nil {
		return errors.Wrapf(errors.ErrLoginFailed, "listen on %s: %v", p.callbackAddr, err)
	}

	loginConf := *conf
	loginConf.RedirectURL = "http://" + ln.Addr().String() + p.callbackPath

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(p.callbackPath, p.callbackHandler(&loginConf, results))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Err(err).Msg("callback server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn().Err(err).Msg("callback server shutdown")
		}
	}()

	authOpts := []oauth2.AuthCodeOption{oidc.Nonce(fs.Nonce)}
	if p.pkce {
		authOpts = append(authOpts, oauth2.S256ChallengeOption(fs.CodeVerifier))
	}
	if err := p.openBrowser(loginConf.AuthCodeURL(state, authOpts...)); err != nil {
		return errors.Wrapf(errors.ErrLoginFailed, "open browser: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	select {
	case res := <-results:
		if res.err != nil {
			return res.err
		}
		if err := p.setToken(res.token); err != nil {
			return err
		}
		p.mu.Lock()
		hooks := p.hooks
		p.mu.Unlock()
		hooks.AuthSuccess()
		return nil
	case <-waitCtx.Done():
		return errors.Wrapf(errors.ErrLoginFailed, "waiting for callback: %v", waitCtx.Err())
	}
}

// callbackHandler completes the flow: it redeems the state, exchanges the code
// and verifies the ID token and nonce. The outcome is sent on results once a
// request with a known state arrives.
func (p *Provider) callbackHandler(conf *oauth2.Config, results chan<- callbackResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliver := func(res callbackResult) {
			select {
			case results <- res:
			default:
			}
		}
		fail := func(status int, err error) {
			http.Error(w, err.Error(), status)
			deliver(callbackResult{err: err})
		}

		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		// Requests that do not carry this flow's state are rejected without
		// ending the login.
		fs, ok := p.flows.Take(state)
		if state == "" || !ok {
			http.Error(w, errors.ErrInvalidState.Error(), http.StatusBadRequest)
			return
		}
		if errorParam != "" {
			fail(http.StatusBadRequest, fmt.Errorf("%w: %s - %s", errors.ErrLoginFailed, errorParam, errorDesc))
			return
		}
		if code == "" {
			fail(http.StatusBadRequest, fmt.Errorf("%w: missing code parameter", errors.ErrLoginFailed))
			return
		}

		var exchangeOpts []oauth2.AuthCodeOption
		if p.pkce {
			exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(fs.CodeVerifier))
		}
		ctx := p.clientContext(r.Context())
		token, err := conf.Exchange(ctx, code, exchangeOpts...)
		if err != nil {
			fail(http.StatusBadGateway, fmt.Errorf("%w: token exchange: %v", errors.ErrLoginFailed, err))
			return
		}

		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok {
			fail(http.StatusBadGateway, errors.ErrMissingIDToken)
			return
		}
		idToken, err := p.verifier().Verify(ctx, rawIDToken)
		if err != nil {
			fail(http.StatusUnauthorized, fmt.Errorf("%w: id token verification: %v", errors.ErrInvalidToken, err))
			return
		}

		var claims struct {
			Nonce string `json:"nonce"`
		}
		if err := idToken.Claims(&claims); err != nil {
			fail(http.StatusBadGateway, fmt.Errorf("%w: id token claims: %v", errors.ErrInvalidToken, err))
			return
		}
		if claims.Nonce != fs.Nonce {
			fail(http.StatusUnauthorized, errors.ErrInvalidNonce)
			return
		}

		deliver(callbackResult{token: token})

		if fs.ReturnURL != "" {
			http.Redirect(w, r, fs.ReturnURL, http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, loginCompletePage)
	}
}
