package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-ticket-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("SHARED_REFRESH", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("KEYCLOAK_URL", "")
	t.Setenv("KEYCLOAK_REALM", "")
	t.Setenv("TICKET_API_URL", "")

	cfg := config.New()
	require.False(t, cfg.GetSharedRefresh())
	require.Zero(t, cfg.GetSessionTTL())
	require.Equal(t, 30*time.Second, cfg.GetSyncCooldown())
	require.Equal(t, "http://localhost:8081/api", cfg.GetAPIBaseURL())
	require.Equal(t, "http://localhost:8180/realms/sav-realm", config.GetIssuerURL(cfg))
}

func TestGetSharedRefresh(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"false", false},
		{"yes", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("SHARED_REFRESH", tt.value)
			require.Equal(t, tt.want, config.OAuth{}.GetSharedRefresh())
		})
	}
}

func TestGetSessionTTL(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"12h", 12 * time.Hour},
		{"90s", 90 * time.Second},
		{"soon", 0},
		{"-1h", 0},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("SESSION_TTL", tt.value)
			require.Equal(t, tt.want, config.Storage{}.GetSessionTTL())
		})
	}
}

func TestGetAPIBaseURLTrimsSlash(t *testing.T) {
	t.Setenv("TICKET_API_URL", "https://tickets.example.com/api/")
	require.Equal(t, "https://tickets.example.com/api", config.EnvVars{}.GetAPIBaseURL())
}
