package devauth

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/apperror"
)

// Handler serves the dev API. Handlers are thin: bind request, call
// service, render JSON.
type Handler struct {
	service Service
}

// NewHandler creates a new dev API handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Login handles POST /login.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}
	session, err := h.service.SignIn(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newAuthResponse(session))
}

// Signup handles POST /signup.
func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}
	session, err := h.service.SignUp(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newAuthResponse(session))
}

// Logout handles POST /logout.
func (h *Handler) Logout(c echo.Context) error {
	token, ok := bearerToken(c)
	if !ok {
		return apperror.NewUnauthorized("bearer token required")
	}
	if err := h.service.SignOut(c.Request().Context(), token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me handles GET /me.
func (h *Handler) Me(c echo.Context) error {
	token, ok := bearerToken(c)
	if !ok {
		return apperror.NewUnauthorized("bearer token required")
	}
	user, err := h.service.Me(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meResponse{User: user})
}

func newAuthResponse(s *Session) authResponse {
	return authResponse{
		Token:     s.Token,
		User:      s.User,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// bearerToken reads "Authorization: Bearer <token>".
func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
