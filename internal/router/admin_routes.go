package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/handler"
	"github.com/iliyamo/grievance-portal/internal/middleware"
)

// RegisterAdmin registers administrator endpoints under /v1/admin.  All
// routes require a valid token of an admin identity.
func RegisterAdmin(e *echo.Echo, g *handler.GrievanceHandler, d *handler.DepartmentHandler, auth middleware.Authenticator) {
	// JWTAuth must run before RequireAdmin, which reads the identity it
	// stored on the context.
	a := e.Group(
		"/v1/admin",
		middleware.JWTAuth(auth),
		middleware.RequireAdmin(),
	)

	// Assigning keeps the grievance status and notifies the handler.
	a.POST("/grievances/:id/assign", g.Assign)
	// Creating a department also purges the cached public listing.
	a.POST("/departments", d.Create)
}
