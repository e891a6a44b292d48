package config

import "time"

type OAuthConfig interface {
	GetRefreshThreshold() time.Duration
	GetRenewalLead() time.Duration
	GetMinRenewalDelay() time.Duration
	GetSyncCooldown() time.Duration
	GetScopes() []string
	GetSharedRefresh() bool
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetRefreshThreshold is the minimum remaining validity before a refresh is issued
func (OAuth) GetRefreshThreshold() time.Duration {
	return 30 * time.Second
}

// GetRenewalLead is how long before expiry the renewal timer fires
func (OAuth) GetRenewalLead() time.Duration {
	return 20 * time.Second
}

func (OAuth) GetMinRenewalDelay() time.Duration {
	return 5 * time.Second
}

func (OAuth) GetSyncCooldown() time.Duration {
	return 30 * time.Second
}

func (OAuth) GetScopes() []string {
	return []string{"openid", "profile", "email", "offline_access"}
}

// GetSharedRefresh makes concurrent token refreshes share one provider call
func (OAuth) GetSharedRefresh() bool {
	return GetBoolEnv("SHARED_REFRESH", false)
}
