package clients

import "slices"

// AuthMethod is the RFC 7591 token_endpoint_auth_method.
type AuthMethod string

const (
	AuthMethodNone              AuthMethod = "none"                // Public clients (MCP hosts, SPAs)
	AuthMethodClientSecretPost  AuthMethod = "client_secret_post"  // Secret in the form body
	AuthMethodClientSecretBasic AuthMethod = "client_secret_basic" // Secret in the Authorization header
)

const DefaultGrantType = "authorization_code"

// Client is a dynamically registered OAuth client. Immutable once registered.
type Client struct {
	ID                      string     `json:"client_id"`
	Name                    string     `json:"client_name"`
	RedirectURIs            []string   `json:"redirect_uris"`
	GrantTypes              []string   `json:"grant_types"`
	ResponseTypes           []string   `json:"response_types"`
	TokenEndpointAuthMethod AuthMethod `json:"token_endpoint_auth_method"`
	Scope                   string     `json:"scope,omitempty"`
	IssuedAt                int64      `json:"client_id_issued_at"`

	// SecretHash is a bcrypt hash; never serialised in API responses.
	SecretHash string `json:"-"`
}

// IsPublic returns true if the client does not authenticate with a secret
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == "" || c.TokenEndpointAuthMethod == AuthMethodNone
}

// HasRedirectURI requires an exact match against the registered URIs
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// Copy returns a deep copy so callers cannot mutate a stored descriptor.
func (c *Client) Copy() *Client {
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.GrantTypes = slices.Clone(c.GrantTypes)
	cp.ResponseTypes = slices.Clone(c.ResponseTypes)
	return &cp
}
