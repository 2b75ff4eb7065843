package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/service"
)

// Purger drops cached responses after a write.  *middleware.ResponseCache
// implements it.
type Purger interface {
	Purge(ctx context.Context) error
}

// DepartmentHandler lists departments publicly and lets admins add them.
type DepartmentHandler struct {
	Departments *service.DepartmentService
	Cache       Purger
}

func NewDepartmentHandler(d *service.DepartmentService, cache Purger) *DepartmentHandler {
	return &DepartmentHandler{Departments: d, Cache: cache}
}

type departmentReq struct {
	Name string `json:"name"`
}

func (r departmentReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
	)
}

func (h *DepartmentHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Departments.List(ctx)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []model.Department{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *DepartmentHandler) Create(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var req departmentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.Departments.Create(ctx, who, req.Name)
	if err != nil {
		return writeError(c, err)
	}
	if h.Cache != nil {
		if err := h.Cache.Purge(ctx); err != nil {
			slog.Warn("purge department cache", "err", err)
		}
	}
	return c.JSON(http.StatusCreated, d)
}
