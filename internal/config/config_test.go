package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := New(WithoutEnv(), WithFile(""))
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.GetPort())
	require.Equal(t, "DEV", cfg.GetEnv())
	require.Equal(t, "http://localhost:8080", cfg.GetBaseURL())
	require.Equal(t, 5*time.Minute, cfg.GetAuthorizationRequestTTL())
	require.Equal(t, 10*time.Minute, cfg.GetAcquisitionFlowTTL())
	require.Equal(t, 2*time.Minute, cfg.GetAuthCodeTTL())
	require.Equal(t, 60*time.Second, cfg.GetSweepInterval())
	require.Equal(t, 10*time.Second, cfg.GetDiscoveryTimeout())
	require.False(t, cfg.GetPersistenceEnabled())
	require.False(t, cfg.GetSkipTokenRedirectURICheck())
	require.False(t, cfg.GetSecureCookies())
	require.Len(t, cfg.GetCookieSecret(), 32)
	require.True(t, cfg.GetAllowedOrigins().IsAllowedOrigin("*"))
	// No refresh tokens are issued, so offline_access is never advertised.
	require.Equal(t, []string{"patient/*.read", "launch/patient"}, cfg.GetScopesSupported())
	require.NotContains(t, cfg.GetScopesSupported(), "offline_access")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("BROKER_PORT", "9090")
	t.Setenv("BROKER_OAUTH__CODE_TTL", "30s")
	t.Setenv("BROKER_STORAGE__PERSISTENCE_ENABLED", "true")
	t.Setenv("BROKER_UPSTREAM__SCOPES", "openid,patient/*.read")
	t.Setenv("BROKER_SECURITY__COOKIE_SECRET", "not-so-secret")

	cfg, err := New(WithFile(""))
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.GetPort())
	require.Equal(t, 30*time.Second, cfg.GetAuthCodeTTL())
	require.True(t, cfg.GetPersistenceEnabled())
	require.Equal(t, []string{"openid", "patient/*.read"}, cfg.GetUpstreamScopes())
	require.Equal(t, []byte("not-so-secret"), cfg.GetCookieSecret())
}

func TestFileThenValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.yaml")
	yamlConfig := `
base_url: https://broker.example.com/
oauth:
  request_ttl: 1m
  scopes_supported:
    - patient/*.read
storage:
  dir: /var/lib/broker
`
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))

	cfg, err := New(WithoutEnv(), WithFile(path), WithValues(map[string]any{
		"storage.dir": "/tmp/records",
	}))
	require.NoError(t, err)

	require.Equal(t, "https://broker.example.com", cfg.GetBaseURL())
	require.True(t, cfg.GetSecureCookies())
	require.Equal(t, time.Minute, cfg.GetAuthorizationRequestTTL())
	require.Equal(t, []string{"patient/*.read"}, cfg.GetScopesSupported())
	require.Equal(t, "/tmp/records", cfg.GetDataFolder())
}

func TestMissingFile(t *testing.T) {
	_, err := New(WithoutEnv(), WithFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}
