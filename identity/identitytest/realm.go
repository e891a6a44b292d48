package identitytest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Realm is a minimal Keycloak-style realm serving discovery, JWKS, the
// authorization and token endpoints and logout
type Realm struct {
	Server   *httptest.Server
	Name     string
	ClientID string
	Keys     *KeyPair

	// AccessTTL is the lifetime of issued access tokens
	AccessTTL time.Duration

	mu            sync.Mutex
	tokenOpts     []TokenOption
	codes         map[string]authRequest
	refreshTokens map[string]bool
	revocation    bool
	failRefresh   bool
	failLogout    bool
	refreshCalls  int
	logoutForms   []url.Values
}

type authRequest struct {
	nonce     string
	challenge string
}

// NewRealm starts a realm named "test-realm" for client "ticketctl"
func NewRealm(t *testing.T) *Realm {
	t.Helper()
	keys, err := GenerateKeyPair("test-key")
	require.NoError(t, err)

	r := &Realm{
		Name:          "test-realm",
		ClientID:      "ticketctl",
		Keys:          keys,
		AccessTTL:     5 * time.Minute,
		codes:         make(map[string]authRequest),
		refreshTokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	base := "/realms/" + r.Name
	mux.HandleFunc(base+"/.well-known/openid-configuration", r.discovery)
	mux.HandleFunc(base+"/protocol/openid-connect/certs", r.certs)
	mux.HandleFunc(base+"/protocol/openid-connect/auth", r.authorize)
	mux.HandleFunc(base+"/protocol/openid-connect/token", r.token)
	mux.HandleFunc(base+"/protocol/openid-connect/logout", r.logout)
	mux.HandleFunc(base+"/protocol/openid-connect/revoke", r.logout)
	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Server.Close)
	return r
}

// URL is the identity server base URL, the equivalent of KEYCLOAK_URL
func (r *Realm) URL() string {
	return r.Server.URL
}

func (r *Realm) Issuer() string {
	return r.Server.URL + "/realms/" + r.Name
}

// SetTokenOptions customises the claims of subsequently issued access tokens
func (r *Realm) SetTokenOptions(opts ...TokenOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenOpts = opts
}

// AdvertiseRevocation adds a revocation_endpoint to discovery
func (r *Realm) AdvertiseRevocation(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revocation = on
}

func (r *Realm) FailRefresh(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failRefresh = fail
}

func (r *Realm) FailLogout(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failLogout = fail
}

func (r *Realm) RefreshCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshCalls
}

// LogoutForms returns the forms posted to the logout and revocation endpoints
func (r *Realm) LogoutForms() []url.Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]url.Values(nil), r.logoutForms...)
}

// IssueRefreshToken registers a refresh token as if from an earlier login
func (r *Realm) IssueRefreshToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := uuid.NewString()
	r.refreshTokens[rt] = true
	return rt
}

func (r *Realm) discovery(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	revocation := r.revocation
	r.mu.Unlock()

	endpoint := r.Issuer() + "/protocol/openid-connect"
	doc := map[string]any{
		"issuer":                                r.Issuer(),
		"authorization_endpoint":                endpoint + "/auth",
		"token_endpoint":                        endpoint + "/token",
		"jwks_uri":                              endpoint + "/certs",
		"end_session_endpoint":                  endpoint + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	if revocation {
		doc["revocation_endpoint"] = endpoint + "/revoke"
	}
	writeJSON(w, http.StatusOK, doc)
}

func (r *Realm) certs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.Keys.JWKS())
}

// authorize skips the login form and redirects straight back with a code
func (r *Realm) authorize(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	if q.Get("client_id") != r.ClientID || q.Get("code_challenge_method") != "S256" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	code := uuid.NewString()
	r.mu.Lock()
	r.codes[code] = authRequest{nonce: q.Get("nonce"), challenge: q.Get("code_challenge")}
	r.mu.Unlock()

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	rq := redirect.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	redirect.RawQuery = rq.Encode()
	http.Redirect(w, req, redirect.String(), http.StatusFound)
}

func (r *Realm) token(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	switch req.PostForm.Get("grant_type") {
	case "authorization_code":
		r.mu.Lock()
		ar, ok := r.codes[req.PostForm.Get("code")]
		delete(r.codes, req.PostForm.Get("code"))
		r.mu.Unlock()
		if !ok || s256(req.PostForm.Get("code_verifier")) != ar.challenge {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		r.issue(w, ar.nonce)

	case "refresh_token":
		r.mu.Lock()
		r.refreshCalls++
		valid := r.refreshTokens[req.PostForm.Get("refresh_token")] && !r.failRefresh
		r.mu.Unlock()
		if !valid {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Token is not active"})
			return
		}
		r.issue(w, "")

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (r *Realm) issue(w http.ResponseWriter, nonce string) {
	now := time.Now()
	r.mu.Lock()
	opts := r.tokenOpts
	rt := uuid.NewString()
	r.refreshTokens[rt] = true
	r.mu.Unlock()

	claims := Claims(now.Add(r.AccessTTL), opts...)
	claims["iss"] = r.Issuer()
	access, err := r.Keys.Sign(claims)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	idClaims := jwtlib.MapClaims{
		"iss": r.Issuer(),
		"aud": r.ClientID,
		"sub": claims["sub"],
		"iat": now.Unix(),
		"exp": now.Add(r.AccessTTL).Unix(),
	}
	if nonce != "" {
		idClaims["nonce"] = nonce
	}
	idToken, err := r.Keys.Sign(idClaims)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    int(r.AccessTTL.Seconds()),
		"refresh_token": rt,
		"id_token":      idToken,
	})
}

func (r *Realm) logout(w http.ResponseWriter, req *http.Request) {
	_ = req.ParseForm()
	r.mu.Lock()
	form := req.PostForm
	form.Set("endpoint", req.URL.Path)
	r.logoutForms = append(r.logoutForms, form)
	fail := r.failLogout
	if rt := form.Get("refresh_token"); rt != "" {
		delete(r.refreshTokens, rt)
	}
	if rt := form.Get("token"); rt != "" {
		delete(r.refreshTokens, rt)
	}
	r.mu.Unlock()

	if fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
