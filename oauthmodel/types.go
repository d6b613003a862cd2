package oauthmodel

// ResponseType represents the OAuth 2.0 response type.
// Only the authorization code flow is offered.
type ResponseType string

const (
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 is the only supported method:
	// code_challenge = BASE64URL-NOPAD(SHA256(code_verifier)).
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	AuthorizationCodeGrant GrantType = "authorization_code"
)

const BearerTokenType = "Bearer"
