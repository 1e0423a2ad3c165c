package server

// Route path constants
const (
	// Session Routes
	RouteSession        = "/session"
	RouteSessionSignIn  = "/session/signin"
	RouteSessionSignOut = "/session/signout"
	RouteSessionCheck   = "/session/check"
	RouteSessionRefresh = "/session/refresh"
	RouteSessionWake    = "/session/wake"
	RouteSessionEvents  = "/session/events"

	// Operational Routes
	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
