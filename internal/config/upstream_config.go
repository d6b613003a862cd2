package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

type Upstream struct {
	k *koanf.Koanf
}

var _ UpstreamConfig = Upstream{}

// GetRetrieverURL is the browser entry point of the clinical-data acquisition app.
func (u Upstream) GetRetrieverURL() string {
	return stringOr(u.k, "upstream.retriever_url", "/ehretriever.html")
}

func (u Upstream) GetUpstreamFHIRBaseURL() string {
	return stringOr(u.k, "upstream.fhir_base_url", "")
}

func (u Upstream) GetUpstreamClientID() string {
	return stringOr(u.k, "upstream.client_id", "")
}

func (u Upstream) GetUpstreamScopes() []string {
	return listOr(u.k, "upstream.scopes", []string{"openid", "fhirUser", "patient/*.read"})
}

func (u Upstream) GetDiscoveryTimeout() time.Duration {
	return durationOr(u.k, "upstream.discovery_timeout", 10*time.Second)
}

func (u Upstream) GetDiscoveryCacheTTL() time.Duration {
	return durationOr(u.k, "upstream.cache_ttl", time.Hour)
}
