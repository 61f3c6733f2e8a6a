package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/middleware"
)

// RegisterRoutes sets up the login, signup and logout routes. They are public;
// protected routes elsewhere use Guard. The Provide middleware must already
// be installed globally.
//
// POST endpoints are rate-limited per IP against credential stuffing:
// 10 login attempts per minute, 5 signups.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, middleware.RateLimit(10, time.Minute))
	e.GET("/signup", h.SignupForm)
	e.POST("/signup", h.Signup, middleware.RateLimit(5, time.Minute))
	e.POST("/logout", h.Logout)

	e.GET("/api/v1/session", h.Session)
}
