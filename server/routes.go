package server

func (s *Server) initRoutes() {
	// Discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownAuthorizationServer, ChainMiddleware(s.WellKnownAuthorizationServer(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownProtectedResource, ChainMiddleware(s.WellKnownProtectedResource(), s.APIMiddleware()...))

	// OAuth2 API
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.Register(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRevoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteIntrospect, ChainMiddleware(s.Introspect(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.Preflight(), s.APIMiddleware()...))

	// Record selection and acquisition
	s.RegisterRouteHandler("GET "+RouteSelectRecord, ChainMiddleware(s.SelectRecordPage(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteInitiateSessionFromDB, ChainMiddleware(s.InitiateSessionFromDB(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteInitiateNewEHRFlow, ChainMiddleware(s.InitiateNewEHRFlow(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteEHRCallback, ChainMiddleware(s.EHRCallback(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteRetrieverCallback, ChainMiddleware(s.RetrieverCallback(), s.APIMiddleware()...))

	// Session
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionSummary(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	s.RegisterRouteFunc("GET "+RouteHealthz, s.Healthz())
}
