package store

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-ticket-client/internal/errors"
)

// InMemory is a thread-safe Store that lives for the process lifetime
type InMemory struct {
	mu       sync.RWMutex
	snapshot *Snapshot
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Load(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil, errors.ErrSessionNotFound
	}
	// Return a copy to prevent external modifications
	return copySnapshot(*s.snapshot), nil
}

func (s *InMemory) Save(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = copySnapshot(snapshot)
	return nil
}

func (s *InMemory) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = nil
	return nil
}
