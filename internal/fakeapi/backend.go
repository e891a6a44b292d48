// Package fakeapi is an in-memory stand-in for the ticket REST API. It
// authenticates bearer tokens by decoding them and keeps users and tickets
// in maps.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/tickets"
	"github.com/jrsteele09/go-ticket-client/users"
)

// Request is a request the backend received
type Request struct {
	Method  string
	Path    string
	Subject string
}

type Backend struct {
	Server *httptest.Server

	mu            sync.RWMutex
	users         map[string]*users.User // subject -> user
	tickets       map[int64]*tickets.Ticket
	files         map[int64][]byte // attachment id -> content
	nextID        int64
	requests      []Request
	rejected      map[string]bool
	syncStatus    map[string]int // sync path -> forced failure status
	statusForPath map[string]int
}

func New(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		users:         make(map[string]*users.User),
		tickets:       make(map[int64]*tickets.Ticket),
		files:         make(map[int64][]byte),
		rejected:      make(map[string]bool),
		syncStatus:    make(map[string]int),
		statusForPath: make(map[string]int),
	}
	b.Server = httptest.NewServer(http.StripPrefix("/api", b.routes()))
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the API base URL, the equivalent of TICKET_API_URL
func (b *Backend) URL() string {
	return b.Server.URL + "/api"
}

// AddUser registers a backend user for subject
func (b *Backend) AddUser(subject string, u users.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u.ID = subject
	b.users[subject] = &u
}

func (b *Backend) HasUser(subject string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.users[subject]
	return ok
}

// RejectToken makes every request bearing token fail with 401
func (b *Backend) RejectToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejected[token] = true
}

// FailSync makes the sync endpoint at path answer with status
func (b *Backend) FailSync(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncStatus[path] = status
}

// FailPath makes any request to path answer with status
func (b *Backend) FailPath(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusForPath[path] = status
}

func (b *Backend) Requests() []Request {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many requests hit method and path
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()
	b.userRoutes(mux)
	b.ticketRoutes(mux)
	return b.authenticate(mux)
}

type claimsKey struct{}

// authenticate decodes the bearer token and records the request
func (b *Backend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := identity.ParseClaims(raw)

		b.mu.Lock()
		rec := Request{Method: r.Method, Path: r.URL.Path}
		if claims != nil {
			rec.Subject = claims.Subject
		}
		b.requests = append(b.requests, rec)
		rejected := b.rejected[raw]
		forced := b.statusForPath[r.URL.Path]
		b.mu.Unlock()

		switch {
		case err != nil || rejected || claims.ExpiresIn(identity.NowTimeFunc()) <= 0:
			writeError(w, r, http.StatusUnauthorized, "Full authentication is required")
			return
		case forced != 0:
			writeError(w, r, forced, http.StatusText(forced))
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func (b *Backend) newID() int64 {
	b.nextID++
	return b.nextID
}

func timestamp() string {
	return identity.NowTimeFunc().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]any{
		"timestamp": timestamp(),
		"status":    status,
		"error":     http.StatusText(status),
		"message":   message,
		"path":      r.URL.Path,
	})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
