package dashboard

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/plugins/auth"
)

// RegisterRoutes registers the protected dashboard.
func RegisterRoutes(e *echo.Echo, h *Handler, provider *auth.Provider) {
	e.GET(auth.DefaultLanding, h.Show, auth.Guard(provider))
}
