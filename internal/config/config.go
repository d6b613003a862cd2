package config

import "time"

// Config is the full configuration surface consumed by the broker.
type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	StorageConfig
	UpstreamConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type OAuthConfig interface {
	GetAuthorizationRequestTTL() time.Duration
	GetAcquisitionFlowTTL() time.Duration
	GetAuthCodeTTL() time.Duration
	GetSweepInterval() time.Duration
	GetCodeGenerationLength() int
	GetAccessTokenLength() int
	GetScopesSupported() []string
	GetSkipTokenRedirectURICheck() bool
}

type StorageConfig interface {
	GetPersistenceEnabled() bool
	GetDataFolder() string
	GetClientsDBPath() string
}

type UpstreamConfig interface {
	GetRetrieverURL() string
	GetUpstreamFHIRBaseURL() string
	GetUpstreamClientID() string
	GetUpstreamScopes() []string
	GetDiscoveryTimeout() time.Duration
	GetDiscoveryCacheTTL() time.Duration
}

type SecurityConfig interface {
	GetCookieSecret() []byte
	GetSecureCookies() bool
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Storage
	Upstream
	Security
}

// New loads configuration from the optional CONFIG_FILE yaml and BROKER_ prefixed env vars.
func New(options ...Option) (Config, error) {
	k, err := load(options...)
	if err != nil {
		return nil, err
	}
	secret, err := cookieSecret(k)
	if err != nil {
		return nil, err
	}
	return mainConfig{
		EnvVars:  EnvVars{k: k},
		Cors:     Cors{k: k},
		OAuth:    OAuth{k: k},
		Storage:  Storage{k: k},
		Upstream: Upstream{k: k},
		Security: Security{k: k, secret: secret},
	}, nil
}
