package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/model"
)

// Authenticator resolves a raw bearer token to an active identity.
// *service.Guard implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.User, error)
}

// unauthorized is the single 401 body.  Missing, malformed, expired and
// unknown-identity tokens are indistinguishable to the client.
func unauthorized(c echo.Context) error {
	c.Response().Header().Set("WWW-Authenticate", "Bearer")
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
}

// JWTAuth validates the Bearer access token and stores the resolved
// identity in the context under identityKey.
func JWTAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			u, err := auth.Authenticate(ctx, raw)
			if err != nil {
				return unauthorized(c)
			}
			c.Set(identityKey, u)
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header.  The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
