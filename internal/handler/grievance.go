package handler

import (
	"context"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/service"
)

// GrievanceHandler exposes the grievance lifecycle.  Ownership and admin
// checks happen in the service.
type GrievanceHandler struct {
	Grievances *service.GrievanceService
	Files      *service.FileService
}

func NewGrievanceHandler(g *service.GrievanceService, f *service.FileService) *GrievanceHandler {
	return &GrievanceHandler{Grievances: g, Files: f}
}

type createGrievanceReq struct {
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	DeptID      *uint64 `json:"dept_id"`
}

func (r createGrievanceReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Category, validation.Length(0, 100)),
	)
}

type statusReq struct {
	Status string `json:"status"`
}

type resolveReq struct {
	Resolution string `json:"resolution"`
}

type assignReq struct {
	HandlerID uint64 `json:"handler_id"`
}

// Create files a grievance in the Submitted state for the caller.  The
// admin notification is queued, not sent, before the 201 goes out.
func (h *GrievanceHandler) Create(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var req createGrievanceReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	g, err := h.Grievances.Create(ctx, who, service.CreateInput{
		Title:       req.Title,
		Category:    req.Category,
		Description: req.Description,
		DeptID:      req.DeptID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, g)
}

// List returns the caller's grievances, or every grievance for admins.
// ?status= narrows the result.
func (h *GrievanceHandler) List(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Grievances.List(ctx, who, model.Status(c.QueryParam("status")))
	if err != nil {
		return writeError(c, err)
	}
	// an empty list is rendered as [] rather than null
	if items == nil {
		items = []model.Grievance{}
	}
	return c.JSON(http.StatusOK, items)
}

// Get returns one grievance to its owner or an admin.  A missing id is
// reported as 404 even to callers who could not have seen it.
func (h *GrievanceHandler) Get(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid grievance id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	g, err := h.Grievances.Get(ctx, who, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// UpdateStatus handles PATCH {status}.  Setting the current status again
// is a 200 with no event; a backward move, a move out of Closed, or a
// write that raced another update on the same grievance is a 409.
func (h *GrievanceHandler) UpdateStatus(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid grievance id")
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Status == "" {
		return badRequest(c, "status: cannot be blank.")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	g, err := h.Grievances.UpdateStatus(ctx, who, id, model.Status(req.Status))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// Resolve marks the grievance resolved and keeps the text as sent.
func (h *GrievanceHandler) Resolve(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid grievance id")
	}
	// resolution may be empty; it is stored verbatim, whitespace included
	var req resolveReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	g, err := h.Grievances.Resolve(ctx, who, id, req.Resolution)
	if err != nil {
		return writeError(c, err)
	}
	// the resolve endpoint answers with a short acknowledgement, not the record
	return c.JSON(http.StatusOK, echo.Map{"status": g.Status, "grievance_id": g.ID})
}

// Assign sets the handling staff member.  Admin only.
func (h *GrievanceHandler) Assign(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid grievance id")
	}
	var req assignReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.HandlerID == 0 {
		return badRequest(c, "handler_id: cannot be blank.")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	g, err := h.Grievances.Assign(ctx, who, id, req.HandlerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// ListFiles lists the attachments of a grievance.
func (h *GrievanceHandler) ListFiles(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid grievance id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	files, err := h.Files.ListForGrievance(ctx, who, id)
	if err != nil {
		return writeError(c, err)
	}
	if files == nil {
		files = []model.FileUpload{}
	}
	return c.JSON(http.StatusOK, files)
}
