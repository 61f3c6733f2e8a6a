package devauth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/middleware"
)

// RegisterRoutes mounts the auth API contract at the root. Credential
// endpoints share the portal's per-IP rate limiter.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.POST("/login", h.Login, middleware.RateLimit(30, time.Minute))
	e.POST("/signup", h.Signup, middleware.RateLimit(10, time.Minute))
	e.POST("/logout", h.Logout)
	e.GET("/me", h.Me)
}
