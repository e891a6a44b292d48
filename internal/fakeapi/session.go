package fakeapi

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/identity/identitytest"
)

// Session is a gateway session with a fixed token that cannot be refreshed
type Session struct {
	mu      sync.Mutex
	token   string
	subject string
	logouts int
}

// NewSession mints a token for subject valid for an hour from identity.NowTimeFunc
func NewSession(subject string, opts ...identitytest.TokenOption) *Session {
	opts = append([]identitytest.TokenOption{identitytest.WithSubject(subject)}, opts...)
	return &Session{
		token:   identitytest.AccessToken(identity.NowTimeFunc().Add(time.Hour), opts...),
		subject: subject,
	}
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) Refresh(context.Context) bool { return false }

func (s *Session) Logout(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	s.token = ""
	return nil
}

func (s *Session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// SignOut clears the subject without counting a logout
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject = ""
}

func (s *Session) Logouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}
