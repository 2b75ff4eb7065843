package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/middleware"
	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/service"
	"github.com/iliyamo/grievance-portal/internal/storage"
)

// writeError translates a service or storage error into the JSON error
// body.  Anything unrecognised is logged and reported as a 500 without
// detail.
func writeError(c echo.Context, err error) error {
	var (
		vErr  *service.ValidationError
		rlErr *service.RateLimitError
	)
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": vErr.Msg})
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUnauthenticated):
		// one body for every token failure so callers cannot tell an
		// expired token from an unknown identity
		c.Response().Header().Set("WWW-Authenticate", "Bearer")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": service.ErrUnauthenticated.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": service.ErrInvalidCredentials.Error()})
	case errors.Is(err, service.ErrAccountDisabled):
		return c.JSON(http.StatusForbidden, echo.Map{"error": service.ErrAccountDisabled.Error()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.As(err, &rlErr):
		// Retry-After is whole seconds, rounded up so a client that waits
		// exactly that long is not blocked again
		secs := int(math.Ceil(rlErr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": service.ErrRateLimited.Error()})
	case errors.Is(err, service.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": service.ErrRateLimited.Error()})
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrTerminalState),
		errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, storage.ErrContentType):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": storage.ErrContentType.Error()})
	case errors.Is(err, storage.ErrTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": storage.ErrTooLarge.Error()})
	}
	slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// caller returns the identity resolved by middleware.JWTAuth.
func caller(c echo.Context) (model.User, error) {
	u, ok := middleware.Identity(c)
	if !ok {
		return model.User{}, service.ErrUnauthenticated
	}
	return u, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
