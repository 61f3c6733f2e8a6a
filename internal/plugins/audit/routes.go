package audit

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/plugins/auth"
)

// RegisterRoutes sets up the activity API. It requires an authenticated
// session; unauthenticated callers get a JSON 401 from the guard.
func RegisterRoutes(e *echo.Echo, h *Handler, provider *auth.Provider) {
	e.GET("/api/v1/activity", h.Activity, auth.Guard(provider))
}
