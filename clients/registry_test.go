package clients_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/ehr-auth-broker/clients"
	fakeclientrepo "github.com/jrsteele09/ehr-auth-broker/clients/fakerepo"
	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
)

func newRegistry() *clients.Registry {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return clients.NewRegistry(fakeclientrepo.NewFakeClientRepo(), clients.WithNowTime(func() time.Time { return fixed }))
}

func TestRegisterDefaults(t *testing.T) {
	registry := newRegistry()

	reg, err := registry.Register(clients.RegistrationRequest{
		ClientName:   "Claude",
		RedirectURIs: []string{"https://client.example/cb"},
		Scopes:       []string{"patient/*.read", "launch/patient"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, reg.ID)
	require.Equal(t, []string{"authorization_code"}, reg.GrantTypes)
	require.Equal(t, clients.AuthMethodNone, reg.TokenEndpointAuthMethod)
	require.Equal(t, "patient/*.read launch/patient", reg.Scope)
	require.Empty(t, reg.ClientSecret)
	require.Equal(t, int64(1735787045), reg.IssuedAt)

	stored, err := registry.Lookup(reg.ID)
	require.NoError(t, err)
	require.Equal(t, "Claude", stored.Name)
	require.True(t, stored.HasRedirectURI("https://client.example/cb"))
	require.False(t, stored.HasRedirectURI("https://client.example/cb/"))
}

func TestRegisterValidation(t *testing.T) {
	registry := newRegistry()

	tests := []struct {
		name string
		req  clients.RegistrationRequest
	}{
		{"missing name", clients.RegistrationRequest{RedirectURIs: []string{"https://a.example/cb"}}},
		{"missing redirects", clients.RegistrationRequest{ClientName: "x"}},
		{"relative redirect", clients.RegistrationRequest{ClientName: "x", RedirectURIs: []string{"/cb"}}},
		{"fragment redirect", clients.RegistrationRequest{ClientName: "x", RedirectURIs: []string{"https://a.example/cb#frag"}}},
		{"unknown auth method", clients.RegistrationRequest{ClientName: "x", RedirectURIs: []string{"https://a.example/cb"}, TokenEndpointAuthMethod: "private_key_jwt"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.Register(tc.req)
			require.ErrorIs(t, err, clients.ErrInvalidMetadata)
		})
	}
}

func TestConfidentialClientAuthentication(t *testing.T) {
	registry := newRegistry()

	reg, err := registry.Register(clients.RegistrationRequest{
		ClientName:              "backend",
		RedirectURIs:            []string{"https://backend.example/cb"},
		TokenEndpointAuthMethod: clients.AuthMethodClientSecretPost,
	})
	require.NoError(t, err)
	require.NotEmpty(t, reg.ClientSecret)

	_, err = registry.Authenticate(reg.ID, reg.ClientSecret)
	require.NoError(t, err)

	_, err = registry.Authenticate(reg.ID, "wrong")
	require.ErrorIs(t, err, autherrors.ErrInvalidClientSecret)

	_, err = registry.Authenticate(reg.ID, "")
	require.ErrorIs(t, err, autherrors.ErrInvalidClientSecret)
}

func TestLookupUnknownAndRemove(t *testing.T) {
	registry := newRegistry()

	_, err := registry.Lookup("nope")
	require.ErrorIs(t, err, autherrors.ErrInvalidClient)

	reg, err := registry.Register(clients.RegistrationRequest{ClientName: "x", RedirectURIs: []string{"https://a.example/cb"}})
	require.NoError(t, err)
	require.NoError(t, registry.Remove(reg.ID))

	_, err = registry.Lookup(reg.ID)
	require.ErrorIs(t, err, autherrors.ErrInvalidClient)
}

func TestLookupReturnsCopy(t *testing.T) {
	registry := newRegistry()
	reg, err := registry.Register(clients.RegistrationRequest{ClientName: "x", RedirectURIs: []string{"https://a.example/cb"}})
	require.NoError(t, err)

	c, err := registry.Lookup(reg.ID)
	require.NoError(t, err)
	c.RedirectURIs[0] = "https://evil.example/cb"

	again, err := registry.Lookup(reg.ID)
	require.NoError(t, err)
	require.Equal(t, "https://a.example/cb", again.RedirectURIs[0])
}
