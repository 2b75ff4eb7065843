package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/handler"
	"github.com/iliyamo/grievance-portal/internal/middleware"
)

// RegisterRoutes registers the unauthenticated health check.  db may be
// nil, in which case the check always answers "ok".
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	// Health lives at the root, outside /v1, so load balancers can poll it
	// without knowing the API version.  It answers 503 while the database
	// ping fails.
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers registration and login under /v1/auth and the
// authenticated /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, auth middleware.Authenticator) {
	// Registration and login need no token.  Login is throttled per email
	// inside the auth service, not by middleware, so that a blocked attempt
	// can be told apart from a bad password and answered with 429.
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	// Accepts JSON {email,password} or an OAuth2 password form where the
	// email arrives as "username".
	g.POST("/login", a.Login)

	// JWTAuth resolves the token to an active identity before Me runs; a
	// missing, expired or orphaned token gets the same 401.
	e.GET("/v1/me", a.Me, middleware.JWTAuth(auth))
}

// RegisterPublic registers read-only endpoints that need no token.  The
// department listing goes through the response cache.
func RegisterPublic(e *echo.Echo, d *handler.DepartmentHandler, cache *middleware.ResponseCache) {
	// Cached in Redis when configured; creating a department purges the
	// cached listing.  Without Redis the middleware passes straight through.
	e.GET("/v1/departments", d.List, cache.Middleware())
}
