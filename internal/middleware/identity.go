package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/model"
)

const identityKey = "identity"

// Identity returns the user stored by JWTAuth.  ok is false on routes
// that are not behind the middleware.
func Identity(c echo.Context) (model.User, bool) {
	u, ok := c.Get(identityKey).(model.User)
	return u, ok
}

// subject labels log lines with the caller, "guest" when anonymous.
func subject(c echo.Context) string {
	if u, ok := Identity(c); ok {
		return u.Email
	}
	return "guest"
}
