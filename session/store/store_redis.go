package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "ticketctl:session:"

// Redis shares the snapshot between processes under ticketctl:session:<name>
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

type RedisOption func(*Redis)

// WithTTL expires the snapshot after ttl. Zero keeps it until cleared.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *Redis) { s.ttl = ttl }
}

func NewRedis(client *redis.Client, name string, opts ...RedisOption) *Redis {
	s := &Redis{
		client: client,
		key:    sessionKeyPrefix + name,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Redis) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", s.key, err)
	}
	return &snapshot, nil
}

func (s *Redis) Save(ctx context.Context, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *Redis) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
