package server

func (s *Server) initRoutes() {
	// Session state
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.StatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionSignIn, ChainMiddleware(s.SignInHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionSignOut, ChainMiddleware(s.SignOutHandler(), s.APIMiddleware()...))

	// Renewal
	s.RegisterRouteHandler("POST "+RouteSessionCheck, ChainMiddleware(s.CheckHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionWake, ChainMiddleware(s.WakeHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteSessionEvents, ChainMiddleware(s.EventsHandler(), s.APIMiddleware()...))

	// Preflight for the browser client
	s.RegisterRouteHandler("OPTIONS "+RouteSession, ChainMiddleware(noContent, s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteSession+"/", ChainMiddleware(noContent, s.APIMiddleware()...))

	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics)
	}
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}
