// Package store persists the session snapshot between runs and processes.
package store

import (
	"context"
	"time"

	"github.com/jrsteele09/go-ticket-client/identity"
)

// Snapshot is the persisted view of a session
type Snapshot struct {
	User          *identity.User `json:"user"`
	Token         string         `json:"token"`
	Authenticated bool           `json:"isAuthenticated"`
	SavedAt       time.Time      `json:"savedAt"`
}

// Store holds at most one snapshot. Load returns errors.ErrSessionNotFound when empty.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
	Clear(ctx context.Context) error
}

func copySnapshot(s Snapshot) *Snapshot {
	if s.User != nil {
		u := *s.User
		u.Roles = append([]identity.Role(nil), s.User.Roles...)
		s.User = &u
	}
	return &s
}
