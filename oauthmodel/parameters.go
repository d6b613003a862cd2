package oauthmodel

import (
	"slices"
	"strings"

	"github.com/jrsteele09/ehr-auth-broker/clients"
)

// AuthorizationParameters holds the query parameters received at /authorize.
type AuthorizationParameters struct {
	// ClientID identifies the registered client requesting authorization.
	ClientID string

	// ResponseType must be "code".
	ResponseType ResponseType

	// RedirectURI must exactly match one of the client's registered redirect URIs.
	RedirectURI string

	// Scope is the space separated list of requested scopes. Optional.
	Scope string

	// State is opaque to the broker and echoed back on the redirect.
	State string

	// CodeChallenge is BASE64URL(SHA256(code_verifier)). Mandatory.
	CodeChallenge string

	// CodeChallengeMethod defaults to S256 when omitted; nothing else is accepted.
	CodeChallengeMethod CodeMethodType
}

// Validate checks the parameters that do not depend on the client.
func (p *AuthorizationParameters) Validate() error {
	if p.ResponseType != CodeResponseType {
		return WrapError(InvalidRequest, ErrInvalidResponseType.Error(), ErrInvalidResponseType)
	}
	if strings.TrimSpace(p.ClientID) == "" {
		return WrapError(InvalidRequest, ErrMissingClientID.Error(), ErrMissingClientID)
	}
	if strings.TrimSpace(p.RedirectURI) == "" {
		return WrapError(InvalidRequest, ErrMissingRedirectUri.Error(), ErrMissingRedirectUri)
	}
	if strings.TrimSpace(p.CodeChallenge) == "" {
		return WrapError(InvalidRequest, ErrInvalidCodeChallenge.Error(), ErrInvalidCodeChallenge)
	}
	if p.CodeChallengeMethod == "" {
		p.CodeChallengeMethod = CodeMethodTypeS256
	}
	if p.CodeChallengeMethod != CodeMethodTypeS256 {
		return WrapError(InvalidRequest, ErrInvalidCodeChallengeMethod.Error(), ErrInvalidCodeChallengeMethod)
	}
	return nil
}

// ValidateParametersWithClient checks the redirect URI against the client's allow-list.
func (p *AuthorizationParameters) ValidateParametersWithClient(client *clients.Client) error {
	if !RedirectValidForClient(p.RedirectURI, client) {
		return WrapError(InvalidRequest, ErrInvalidRedirectUri.Error(), ErrInvalidRedirectUri)
	}
	return nil
}

// RedirectValidForClient requires an exact string match; no prefix or wildcard matching.
func RedirectValidForClient(redirectURI string, client *clients.Client) bool {
	return client != nil && slices.Contains(client.RedirectURIs, redirectURI)
}
