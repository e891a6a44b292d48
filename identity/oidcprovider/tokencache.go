package oidcprovider

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/jrsteele09/go-ticket-client/internal/utils"
)

// TokenCache persists the refresh token between runs for silent re-authentication
type TokenCache interface {
	Load() (*CachedToken, error)
	Save(token *CachedToken) error
	Clear() error
}

type CachedToken struct {
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// FileTokenCache stores the token as JSON readable only by the owner
type FileTokenCache struct {
	path string
}

var _ TokenCache = (*FileTokenCache)(nil)

func NewFileTokenCache(path string) *FileTokenCache {
	return &FileTokenCache{path: path}
}

// Load returns errors.ErrNotFound when nothing has been cached
func (c *FileTokenCache) Load() (*CachedToken, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read token cache: %w", err)
	}

	var token CachedToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode token cache: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, errors.ErrNotFound
	}
	return &token, nil
}

func (c *FileTokenCache) Save(token *CachedToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}
	return utils.WriteFileAtomic(c.path, data)
}

func (c *FileTokenCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token cache: %w", err)
	}
	return nil
}
