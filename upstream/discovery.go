package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	smartConfigurationPath = "/.well-known/smart-configuration"
	maxDiscoveryBody       = 1 << 20
)

var ErrDiscovery = errors.New("upstream discovery failed")

// Endpoints are the upstream provider's OAuth endpoints.
type Endpoints struct {
	Issuer                string `json:"issuer,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// Discoverer resolves a FHIR server's OAuth endpoints. SMART configuration is tried
// first, then OpenID Connect discovery. Results are cached per FHIR base URL.
type Discoverer struct {
	httpClient *http.Client
	timeout    time.Duration
	cache      *cache.Cache
}

func NewDiscoverer(timeout, cacheTTL time.Duration, httpClient *http.Client) *Discoverer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Discoverer{
		httpClient: httpClient,
		timeout:    timeout,
		cache:      cache.New(cacheTTL, 2*cacheTTL),
	}
}

// Discover never blocks longer than the configured timeout.
func (d *Discoverer) Discover(ctx context.Context, fhirBaseURL string) (*Endpoints, error) {
	key := strings.TrimRight(fhirBaseURL, "/")
	if v, ok := d.cache.Get(key); ok {
		return v.(*Endpoints), nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	endpoints, err := d.smartConfiguration(ctx, key)
	if err != nil {
		log.Debug().Err(err).Str("fhir_base", key).Msg("smart configuration unavailable, trying OpenID discovery")
		endpoints, err = d.openIDConfiguration(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDiscovery, key, err)
		}
	}

	d.cache.SetDefault(key, endpoints)
	return endpoints, nil
}

func (d *Discoverer) smartConfiguration(ctx context.Context, fhirBaseURL string) (*Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fhirBaseURL+smartConfigurationPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("smart configuration returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBody))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("smart configuration is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	endpoints := &Endpoints{
		Issuer:                doc.Get("issuer").String(),
		AuthorizationEndpoint: doc.Get("authorization_endpoint").String(),
		TokenEndpoint:         doc.Get("token_endpoint").String(),
	}
	if endpoints.AuthorizationEndpoint == "" || endpoints.TokenEndpoint == "" {
		return nil, errors.New("smart configuration is missing authorization or token endpoint")
	}
	return endpoints, nil
}

func (d *Discoverer) openIDConfiguration(ctx context.Context, issuer string) (*Endpoints, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, d.httpClient), issuer)
	if err != nil {
		return nil, err
	}
	endpoint := provider.Endpoint()
	return &Endpoints{
		Issuer:                issuer,
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
	}, nil
}
