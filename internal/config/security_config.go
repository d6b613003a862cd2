package config

import (
	"strings"

	"github.com/knadh/koanf/v2"
)

type Security struct {
	k      *koanf.Koanf
	secret []byte
}

var _ SecurityConfig = Security{}

// GetCookieSecret is the HMAC key for the acquisition flow cookie.
func (s Security) GetCookieSecret() []byte {
	return s.secret
}

// GetSecureCookies defaults to true when the base URL is https.
func (s Security) GetSecureCookies() bool {
	if s.k.Exists("security.secure_cookies") {
		return s.k.Bool("security.secure_cookies")
	}
	return strings.HasPrefix(stringOr(s.k, "base_url", ""), "https://")
}
