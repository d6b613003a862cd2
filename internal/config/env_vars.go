package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
)

type EnvVars struct {
	k *koanf.Koanf
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := stringOr(e.k, "port", "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return stringOr(e.k, "app_name", "EHR Auth Broker")
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(stringOr(e.k, "env", "DEV"))
}

// GetBaseURL returns the externally visible base URL (e.g., "https://broker.example.com").
// Used for the issuer, metadata endpoints and the upstream redirect URI.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(stringOr(e.k, "base_url", "http://localhost:8080"), "/")
}

func (e EnvVars) GetLogLevel() string {
	return strings.ToLower(stringOr(e.k, "log_level", "info"))
}
