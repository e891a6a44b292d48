package config

import (
	"os"
	"path/filepath"
	"time"
)

type StorageConfig interface {
	GetSessionFile() string
	GetTokenCacheFile() string
	GetRedisURL() string
	GetSessionTTL() time.Duration
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetSessionFile() string {
	return GetEnv("SESSION_FILE", defaultStatePath("session.json"))
}

func (Storage) GetTokenCacheFile() string {
	return GetEnv("TOKEN_CACHE_FILE", defaultStatePath("token.json"))
}

// GetRedisURL enables the shared Redis stores when set
func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

// GetSessionTTL expires the Redis session snapshot. Zero keeps it until logout.
func (Storage) GetSessionTTL() time.Duration {
	return GetDurationEnv("SESSION_TTL", 0)
}

func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ticketctl", name)
	}
	return filepath.Join(home, ".ticketctl", name)
}
