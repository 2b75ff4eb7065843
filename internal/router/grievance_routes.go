package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/handler"
	"github.com/iliyamo/grievance-portal/internal/middleware"
)

// RegisterGrievances registers the grievance and attachment endpoints.
// Every route requires a valid token; owner-or-admin checks happen in
// the service layer so that a missing grievance reports 404 before 403.
func RegisterGrievances(e *echo.Echo, g *handler.GrievanceHandler, f *handler.FileHandler, auth middleware.Authenticator) {
	// Every route in this group runs JWTAuth first, which resolves the
	// caller to an active identity and stores it on the context.  Group
	// middleware wraps only routes added through the group, so the auth
	// and department routes registered elsewhere under /v1 stay public.
	v1 := e.Group("/v1", middleware.JWTAuth(auth))

	v1.POST("/grievances", g.Create)
	// Students see their own grievances; admins see all and may filter
	// with ?status=.
	v1.GET("/grievances", g.List)
	v1.GET("/grievances/:id", g.Get)
	// Status updates only move forward; a write that lost a race with
	// another update on the same grievance answers 409.
	v1.PATCH("/grievances/:id", g.UpdateStatus)
	v1.POST("/grievances/:id/resolve", g.Resolve)
	v1.GET("/grievances/:id/files", g.ListFiles)

	// Uploads are streamed straight to blob storage.  grievance_id comes
	// from the query string or a form field placed before the file part.
	v1.POST("/files", f.Upload)
	v1.GET("/files/:id", f.Download)
	v1.DELETE("/files/:id", f.Delete)
}
