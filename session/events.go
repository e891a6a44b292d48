package session

import "github.com/jrsteele09/go-ticket-client/identity"

type EventType string

const (
	EventAuthenticated EventType = "authenticated"
	EventRefreshed     EventType = "refreshed"
	EventLoggedOut     EventType = "logged_out"
)

// Event is delivered to subscribers on every session transition
type Event struct {
	Type EventType
	User *identity.User
}

// Subscribe registers fn for session events and returns a function that removes it.
// fn runs on the goroutine that caused the transition and must not block.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubscriber
	m.nextSubscriber++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Manager) publish(e Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}
