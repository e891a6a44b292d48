package config

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetCallbackAddr() string
	GetCallbackPath() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetRequirePKCE() bool {
	return true // Keycloak public clients are configured for S256
}

// GetCallbackAddr is the loopback address the login callback listens on
func (Security) GetCallbackAddr() string {
	return GetEnv("CALLBACK_ADDR", "127.0.0.1:8085")
}

func (Security) GetCallbackPath() string {
	return "/callback"
}
