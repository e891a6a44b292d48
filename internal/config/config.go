package config

type Config interface {
	EnvConfig
	OAuthConfig
	SecurityConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetAPIBaseURL() string
	GetIdentityURL() string
	GetRealm() string
	GetClientID() string
	GetClientSecret() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Security
	Storage
}

func New() Config {
	return mainConfig{}
}
