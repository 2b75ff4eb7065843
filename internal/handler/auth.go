package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/service"
	"github.com/iliyamo/grievance-portal/internal/utils"
)

// AuthHandler serves registration, login and the current identity.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(a *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: a}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (r registerReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, utils.MaxPasswordBytes)),
		validation.Field(&r.FullName, validation.Length(0, 255)),
	)
}

// loginReq accepts JSON or an OAuth2 password form, where the email
// arrives as "username".
type loginReq struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"-" form:"username"`
	Password string `json:"password" form:"password"`
}

func (r loginReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type tokenResp struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type userResp struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResp(u model.User) userResp {
	return userResp{ID: u.ID, Email: u.Email, FullName: u.FullName, IsAdmin: u.IsAdmin, IsActive: u.IsActive, CreatedAt: u.CreatedAt}
}

// Register creates an identity and returns 201 {id, email}.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	// a non-string password (e.g. a bare number) fails here; it is never
	// coerced into a string before hashing
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Auth.Register(ctx, service.RegisterInput{Email: req.Email, Password: req.Password, FullName: req.FullName})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": u.ID, "email": u.Email})
}

// Login exchanges credentials for a bearer access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	// OAuth2 password-grant clients send the email as "username"
	if req.Email == "" {
		req.Email = req.Username
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	// The limiter counts this attempt before the password is checked.  A
	// blocked email gets 429 with Retry-After even if the password is right.
	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResp{
		AccessToken: res.Token.Token,
		TokenType:   "bearer",
		ExpiresAt:   res.Token.Exp,
	})
}

// Me returns the authenticated identity.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}
