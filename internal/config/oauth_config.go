package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

type OAuth struct {
	k *koanf.Koanf
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetAuthorizationRequestTTL() time.Duration {
	return durationOr(o.k, "oauth.request_ttl", 5*time.Minute)
}

func (o OAuth) GetAcquisitionFlowTTL() time.Duration {
	return durationOr(o.k, "oauth.flow_ttl", 10*time.Minute)
}

func (o OAuth) GetAuthCodeTTL() time.Duration {
	return durationOr(o.k, "oauth.code_ttl", 2*time.Minute)
}

func (o OAuth) GetSweepInterval() time.Duration {
	return durationOr(o.k, "oauth.sweep_interval", 60*time.Second)
}

func (o OAuth) GetCodeGenerationLength() int {
	return intOr(o.k, "oauth.code_length", 32)
}

// GetAccessTokenLength is in random bytes; 32 bytes = 43 base64url characters.
func (o OAuth) GetAccessTokenLength() int {
	return intOr(o.k, "oauth.token_length", 32)
}

func (o OAuth) GetScopesSupported() []string {
	return listOr(o.k, "oauth.scopes_supported", []string{"patient/*.read", "launch/patient"})
}

// GetSkipTokenRedirectURICheck disables the redirect_uri comparison at the token endpoint.
func (o OAuth) GetSkipTokenRedirectURICheck() bool {
	return o.k.Bool("oauth.skip_token_redirect_uri_check")
}
