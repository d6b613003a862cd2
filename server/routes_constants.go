package server

// Route path constants
const (
	// Discovery
	RouteWellKnownAuthorizationServer = "/.well-known/oauth-authorization-server"
	RouteWellKnownProtectedResource   = "/.well-known/oauth-protected-resource"

	// OAuth2 API
	RouteAuthorize  = "/authorize"
	RouteToken      = "/token"
	RouteRegister   = "/register"
	RouteRevoke     = "/revoke"
	RouteIntrospect = "/introspect"

	// Record selection and acquisition (browser facing)
	RouteSelectRecord          = "/select-record"
	RouteInitiateSessionFromDB = "/initiate-session-from-db"
	RouteInitiateNewEHRFlow    = "/initiate-new-ehr-flow"
	RouteEHRCallback           = "/ehr-callback"
	RouteRetrieverCallback     = "/ehr-retriever-callback"

	// Session and operations
	RouteSession = "/session"
	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"
)

// KnownPaths are the paths used as metric labels.
func KnownPaths() []string {
	return []string{
		RouteWellKnownAuthorizationServer,
		RouteWellKnownProtectedResource,
		RouteAuthorize,
		RouteToken,
		RouteRegister,
		RouteRevoke,
		RouteIntrospect,
		RouteSelectRecord,
		RouteInitiateSessionFromDB,
		RouteInitiateNewEHRFlow,
		RouteEHRCallback,
		RouteRetrieverCallback,
		RouteSession,
		RouteMetrics,
		RouteHealthz,
	}
}
