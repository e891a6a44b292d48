package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore records sync attempts per subject.
// TryMark claims the attempt at time at unless one was claimed less than
// window earlier. The check and the write happen as one step, so concurrent
// callers for the same subject see exactly one success per window.
type CooldownStore interface {
	TryMark(ctx context.Context, subject string, at time.Time, window time.Duration) (bool, error)
}

// InMemoryCooldown keeps markers for the life of the process
type InMemoryCooldown struct {
	mu       sync.RWMutex
	attempts map[string]time.Time
}

var _ CooldownStore = (*InMemoryCooldown)(nil)

func NewInMemoryCooldown() *InMemoryCooldown {
	return &InMemoryCooldown{attempts: make(map[string]time.Time)}
}

func (s *InMemoryCooldown) TryMark(_ context.Context, subject string, at time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.attempts[subject]; ok && at.Sub(last) < window {
		return false, nil
	}
	s.attempts[subject] = at
	return true, nil
}

// LastAttempt returns the last claimed attempt for subject
func (s *InMemoryCooldown) LastAttempt(_ context.Context, subject string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.attempts[subject]
	return at, ok, nil
}

// MarkAttempt overwrites the marker for subject unconditionally
func (s *InMemoryCooldown) MarkAttempt(_ context.Context, subject string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[subject] = at
	return nil
}

const cooldownKeyPrefix = "ticketctl:sync-cooldown:"

// RedisCooldown shares markers between processes. A marker is a key that
// expires with the window, claimed with SET NX.
type RedisCooldown struct {
	client *redis.Client
}

var _ CooldownStore = (*RedisCooldown)(nil)

func NewRedisCooldown(client *redis.Client) *RedisCooldown {
	return &RedisCooldown{client: client}
}

func (s *RedisCooldown) TryMark(ctx context.Context, subject string, at time.Time, window time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, cooldownKeyPrefix+subject, at.UTC().Format(time.RFC3339Nano), window).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim cooldown for %s: %w", subject, err)
	}
	return ok, nil
}
