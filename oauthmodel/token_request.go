package oauthmodel

import "net/url"

// TokenRequest holds the form parameters sent to /token.
type TokenRequest struct {
	GrantType GrantType

	// ClientID comes from the form body or HTTP basic auth.
	ClientID string

	// ClientSecret is only used by confidential clients. Never log it.
	ClientSecret string

	// Code is the single-use authorization code.
	Code string

	// RedirectURI must equal the value sent to /authorize when re-verification is enabled.
	RedirectURI string

	// CodeVerifier is the PKCE verifier; SHA256 of it must match the stored challenge.
	CodeVerifier string
}

// RevocationRequest holds the RFC 7009 form parameters sent to /revoke.
type RevocationRequest struct {
	Token         string
	TokenTypeHint string
	ClientID      string
	ClientSecret  string
}

// IntrospectionRequest holds the RFC 7662 form parameters sent to /introspect.
type IntrospectionRequest struct {
	Token        string
	ClientID     string
	ClientSecret string
}

// TokenResponse is returned from /token. There is no expires_in: access tokens live
// until revoked or until the process restarts.
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	Scopes      []string `json:"scopes"`
	Scope       string   `json:"scope,omitempty"`
}

// IntrospectionResponse is returned from /introspect.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// ClientRedirect is a successful authorization result addressed to the client.
type ClientRedirect struct {
	RedirectURI string
	Code        string
	State       string
}

// URL returns redirect_uri with code and state appended to any existing query.
func (c *ClientRedirect) URL() (string, bool) {
	values := url.Values{}
	values.Set("code", c.Code)
	if c.State != "" {
		values.Set("state", c.State)
	}
	return appendQuery(c.RedirectURI, values)
}
