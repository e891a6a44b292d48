package oidcprovider

import (
	"errors"
	"sync"
	"time"
)

// flowState is the per-login data bound to the state parameter
type flowState struct {
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

// flowStates is a thread-safe store of pending authorization flows
type flowStates struct {
	mu     sync.RWMutex
	states map[string]flowState
}

func newFlowStates() *flowStates {
	return &flowStates{states: make(map[string]flowState)}
}

func (r *flowStates) Upsert(state string, fs flowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state] = fs
	return nil
}

// Take returns and removes the flow for state. A state can be redeemed once.
func (r *flowStates) Take(state string) (flowState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fs, ok := r.states[state]
	if ok {
		delete(r.states, state)
	}
	return fs, ok
}

// Purge drops flows older than maxAge
func (r *flowStates) Purge(now time.Time, maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for state, fs := range r.states {
		if now.Sub(fs.CreatedAt) > maxAge {
			delete(r.states, state)
		}
	}
}
