package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/ehr-auth-broker/server"
)

// newFakeProvider serves SMART discovery and a token endpoint for the upstream dance.
func newFakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	var provider *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /fhir/.well-known/smart-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"authorization_endpoint": provider.URL + "/authorize",
			"token_endpoint":         provider.URL + "/token",
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "upstream-token",
			"token_type":   "Bearer",
			"patient":      "pat-9",
		})
	})
	provider = httptest.NewServer(mux)
	t.Cleanup(provider.Close)
	return provider
}

func newUpstreamEnv(t *testing.T) (*testEnv, *httptest.Server) {
	provider := newFakeProvider(t)
	env := newTestEnv(t, map[string]any{
		"upstream.fhir_base_url": provider.URL + "/fhir",
		"upstream.client_id":     "broker-at-provider",
	})
	return env, provider
}

// startUpstreamFlow returns the state the broker sent to the upstream provider.
func (env *testEnv) startUpstreamFlow(t *testing.T, provider *httptest.Server) string {
	t.Helper()
	clientID := env.register(t)
	requestID := requestIDFrom(t, env.authorize(clientID, clientRedirectURI), server.RouteInitiateNewEHRFlow)

	loc, err := url.Parse(env.e.GET(server.RouteInitiateNewEHRFlow).
		WithQuery("requestId", requestID).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw())
	require.NoError(t, err)
	require.Equal(t, provider.URL+"/authorize", loc.Scheme+"://"+loc.Host+loc.Path)
	require.Equal(t, "S256", loc.Query().Get("code_challenge_method"))
	require.Equal(t, "broker-at-provider", loc.Query().Get("client_id"))

	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestUpstreamCallbackHandsTokenToRetriever(t *testing.T) {
	env, provider := newUpstreamEnv(t)
	state := env.startUpstreamFlow(t, provider)

	env.e.GET(server.RouteEHRCallback).
		WithQuery("code", "upstream-code").
		WithQuery("state", state).
		Expect().
		Status(http.StatusOK).
		Body().
		Contains("/ehretriever.html").
		Contains("accessToken=upstream-token")

	env.e.POST(server.RouteRetrieverCallback).
		WithJSON(testDataset()).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("success", true)
}

func TestUpstreamCallbackRejectsForeignState(t *testing.T) {
	env, provider := newUpstreamEnv(t)
	env.startUpstreamFlow(t, provider)

	env.e.GET(server.RouteEHRCallback).
		WithQuery("code", "upstream-code").
		WithQuery("state", "someone-elses-flow").
		Expect().
		Status(http.StatusBadRequest).
		Body().NotContains("upstream-token")
}

func TestUpstreamDenialIsReportedToClient(t *testing.T) {
	env, provider := newUpstreamEnv(t)
	state := env.startUpstreamFlow(t, provider)

	loc, err := url.Parse(env.e.GET(server.RouteEHRCallback).
		WithQuery("error", "access_denied").
		WithQuery("state", state).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw())
	require.NoError(t, err)
	require.Equal(t, "client.example", loc.Host)
	require.Equal(t, "access_denied", loc.Query().Get("error"))
	require.Equal(t, clientState, loc.Query().Get("state"))
}

func TestUpstreamDiscoveryFailureIsReportedToClient(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	env := newTestEnv(t, map[string]any{
		"upstream.fhir_base_url": dead.URL + "/fhir",
		"upstream.client_id":     "broker-at-provider",
	})
	dead.Close()

	clientID := env.register(t)
	requestID := requestIDFrom(t, env.authorize(clientID, clientRedirectURI), server.RouteInitiateNewEHRFlow)

	loc, err := url.Parse(env.e.GET(server.RouteInitiateNewEHRFlow).
		WithQuery("requestId", requestID).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw())
	require.NoError(t, err)
	require.Equal(t, "client.example", loc.Host)
	require.Equal(t, "server_error", loc.Query().Get("error"))
}
