package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/ehr-auth-broker/internal/config"
)

const (
	CallbackPath = "/ehr-callback"
	DeliveryPath = "/ehr-retriever-callback"
)

var ErrUnknownFlow = errors.New("no upstream authorization pending for this flow")

// LauncherConfig is the configuration the launcher needs.
type LauncherConfig interface {
	config.EnvConfig
	config.UpstreamConfig
}

// Handoff is what the acquisition app needs to fetch the record and deliver it back.
type Handoff struct {
	FHIRBaseURL      string
	AccessToken      string
	Patient          string
	DeliveryEndpoint string
}

type pendingAuthorization struct {
	verifier string
	fhirBase string
	conf     *oauth2.Config
}

// Launcher sends the browser into a clinical-data acquisition. With an upstream FHIR
// server configured it runs the upstream authorization code + PKCE exchange itself;
// otherwise it hands over to the external acquisition app.
type Launcher struct {
	cfg        LauncherConfig
	discoverer *Discoverer
	httpClient *http.Client
	pending    *cache.Cache
}

func NewLauncher(cfg LauncherConfig, discoverer *Discoverer, flowTTL time.Duration, httpClient *http.Client) *Launcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Launcher{
		cfg:        cfg,
		discoverer: discoverer,
		httpClient: httpClient,
		pending:    cache.New(flowTTL, flowTTL),
	}
}

// Configured reports whether the broker runs the upstream authorization itself.
func (l *Launcher) Configured() bool {
	return l.cfg.GetUpstreamFHIRBaseURL() != "" && l.cfg.GetUpstreamClientID() != ""
}

// EntryURL returns where the browser goes to start acquiring data for flowID.
func (l *Launcher) EntryURL(ctx context.Context, flowID string) (string, error) {
	if !l.Configured() {
		return l.RetrieverURL(nil), nil
	}

	fhirBase := strings.TrimRight(l.cfg.GetUpstreamFHIRBaseURL(), "/")
	endpoints, err := l.discoverer.Discover(ctx, fhirBase)
	if err != nil {
		return "", err
	}

	conf := &oauth2.Config{
		ClientID: l.cfg.GetUpstreamClientID(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   endpoints.AuthorizationEndpoint,
			TokenURL:  endpoints.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: l.cfg.GetBaseURL() + CallbackPath,
		Scopes:      l.cfg.GetUpstreamScopes(),
	}
	verifier := oauth2.GenerateVerifier()
	l.pending.SetDefault(flowID, &pendingAuthorization{
		verifier: verifier,
		fhirBase: fhirBase,
		conf:     conf,
	})

	return conf.AuthCodeURL(flowID,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("aud", fhirBase),
	), nil
}

// Exchange redeems the upstream code returned to /ehr-callback. state is the flow id.
func (l *Launcher) Exchange(ctx context.Context, flowID, code string) (*Handoff, error) {
	v, ok := l.pending.Get(flowID)
	if !ok {
		return nil, ErrUnknownFlow
	}
	l.pending.Delete(flowID)
	pending := v.(*pendingAuthorization)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, l.httpClient)
	token, err := pending.conf.Exchange(ctx, code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		return nil, fmt.Errorf("[Launcher Exchange] %w", err)
	}

	patient, _ := token.Extra("patient").(string)
	log.Info().Str("fhir_base", pending.fhirBase).Bool("patient_context", patient != "").Msg("upstream authorization complete")
	return &Handoff{
		FHIRBaseURL:      pending.fhirBase,
		AccessToken:      token.AccessToken,
		Patient:          patient,
		DeliveryEndpoint: l.DeliveryEndpoint(),
	}, nil
}

// Forget drops a pending upstream authorization.
func (l *Launcher) Forget(flowID string) {
	l.pending.Delete(flowID)
}

func (l *Launcher) DeliveryEndpoint() string {
	return l.cfg.GetBaseURL() + DeliveryPath
}

// RetrieverURL resolves the acquisition app against the base URL. The delivery endpoint
// goes in the query; upstream credentials only ever travel in the fragment.
func (l *Launcher) RetrieverURL(h *Handoff) string {
	base, err := url.Parse(l.cfg.GetBaseURL() + "/")
	if err != nil {
		return l.cfg.GetRetrieverURL()
	}
	ref, err := url.Parse(l.cfg.GetRetrieverURL())
	if err != nil {
		return l.cfg.GetRetrieverURL()
	}
	u := base.ResolveReference(ref)

	q := u.Query()
	q.Set("deliveryEndpoint", l.DeliveryEndpoint())
	u.RawQuery = q.Encode()

	if h != nil {
		fragment := url.Values{}
		fragment.Set("fhirBaseUrl", h.FHIRBaseURL)
		fragment.Set("accessToken", h.AccessToken)
		if h.Patient != "" {
			fragment.Set("patient", h.Patient)
		}
		u.Fragment = ""
		u.RawFragment = ""
		return u.String() + "#" + fragment.Encode()
	}
	return u.String()
}
