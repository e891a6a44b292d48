package users

import (
	"context"
)

const (
	PathSyncTokenInfo     = "/users/sync/token-info"
	PathSyncUserInfo      = "/users/sync/user-info"
	PathSyncForceSync     = "/users/sync/force-sync"
	PathSyncExists        = "/users/sync/exists"
	PathSyncCreateMinimal = "/users/sync/create-minimal"
	PathDebugTokenInfo    = "/debug/token-info"
)

// TokenInfo returns the claims the backend extracted from the bearer token
func (a *API) TokenInfo(ctx context.Context) (map[string]any, error) {
	return a.info(ctx, PathSyncTokenInfo)
}

// UserInfo returns the identity provider's userinfo for the bearer token
func (a *API) UserInfo(ctx context.Context) (map[string]any, error) {
	return a.info(ctx, PathSyncUserInfo)
}

func (a *API) DebugTokenInfo(ctx context.Context) (map[string]any, error) {
	return a.info(ctx, PathDebugTokenInfo)
}

func (a *API) CheckExists(ctx context.Context) (*ExistsResponse, error) {
	var res ExistsResponse
	if err := a.client.Get(ctx, PathSyncExists, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ForceSync creates or updates the backend user from the identity provider account
func (a *API) ForceSync(ctx context.Context) (*User, error) {
	var u User
	if err := a.client.Post(ctx, PathSyncForceSync, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateMinimal creates a backend user from the token claims alone
func (a *API) CreateMinimal(ctx context.Context) (*User, error) {
	var u User
	if err := a.client.Post(ctx, PathSyncCreateMinimal, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) info(ctx context.Context, path string) (map[string]any, error) {
	info := make(map[string]any)
	if err := a.client.Get(ctx, path, nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}
