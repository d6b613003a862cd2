package oauthmodel

import "github.com/jrsteele09/ehr-auth-broker/clients"

// AuthorizationServerMetadata is the RFC 8414 document served at
// /.well-known/oauth-authorization-server.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// ProtectedResourceMetadata is the RFC 9728 document served at
// /.well-known/oauth-protected-resource.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

// NewAuthorizationServerMetadata builds absolute endpoint URLs from baseURL.
func NewAuthorizationServerMetadata(baseURL string, scopes []string) AuthorizationServerMetadata {
	return AuthorizationServerMetadata{
		Issuer:                 baseURL,
		AuthorizationEndpoint:  baseURL + "/authorize",
		TokenEndpoint:          baseURL + "/token",
		RegistrationEndpoint:   baseURL + "/register",
		RevocationEndpoint:     baseURL + "/revoke",
		IntrospectionEndpoint:  baseURL + "/introspect",
		ScopesSupported:        scopes,
		ResponseTypesSupported: []string{string(CodeResponseType)},
		GrantTypesSupported:    []string{string(AuthorizationCodeGrant)},
		TokenEndpointAuthMethodsSupported: []string{
			string(clients.AuthMethodNone),
			string(clients.AuthMethodClientSecretPost),
			string(clients.AuthMethodClientSecretBasic),
		},
		CodeChallengeMethodsSupported: []string{string(CodeMethodTypeS256)},
	}
}

func NewProtectedResourceMetadata(baseURL string, scopes []string) ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               baseURL,
		AuthorizationServers:   []string{baseURL},
		ScopesSupported:        scopes,
		BearerMethodsSupported: []string{"header"},
	}
}
