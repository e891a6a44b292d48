package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar      = "APP_NAME"
	apiURLVar       = "TICKET_API_URL"
	identityURLVar  = "KEYCLOAK_URL"
	realmVar        = "KEYCLOAK_REALM"
	clientIDVar     = "KEYCLOAK_CLIENT_ID"
	clientSecretVar = "KEYCLOAK_CLIENT_SECRET"
	logLevelVar     = "LOG_LEVEL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "ticketctl")
}

// GetAPIBaseURL returns the REST gateway base URL, e.g. "http://localhost:8081/api".
// A trailing slash is removed so paths can be appended directly.
func (EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiURLVar, "http://localhost:8081/api"), "/")
}

func (EnvVars) GetIdentityURL() string {
	return strings.TrimRight(GetEnv(identityURLVar, "http://localhost:8180"), "/")
}

func (EnvVars) GetRealm() string {
	return GetEnv(realmVar, "sav-realm")
}

func (EnvVars) GetClientID() string {
	return GetEnv(clientIDVar, "sav-frontend")
}

// GetClientSecret is empty for public clients
func (EnvVars) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetIssuerURL returns the realm issuer used for OIDC discovery
func GetIssuerURL(c EnvConfig) string {
	return c.GetIdentityURL() + "/realms/" + c.GetRealm()
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetBoolEnv accepts the forms strconv.ParseBool does. Unparseable values give defaultValue.
func GetBoolEnv(envVar string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return v
}

// GetDurationEnv parses values such as "12h". Unparseable values give defaultValue.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
