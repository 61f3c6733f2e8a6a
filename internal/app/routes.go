package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/plugins/audit"
	"github.com/keyxmakerx/authportal/internal/plugins/auth"
	"github.com/keyxmakerx/authportal/internal/plugins/dashboard"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes. It registers public routes
// directly and delegates to each plugin's route registration function.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Public Routes ---

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, auth.DefaultLanding)
	})
	e.GET("/healthz", a.health)

	// --- Plugin Routes ---

	auth.RegisterRoutes(e, auth.NewHandler())

	// A nil interface value, not a typed nil, when auditing is off.
	var activity dashboard.ActivitySource
	if a.Audit != nil {
		activity = a.Audit
		audit.RegisterRoutes(e, audit.NewHandler(a.Audit), a.Provider)
	}
	dashboard.RegisterRoutes(e, dashboard.NewHandler(activity), a.Provider)
}

// health reports whether Redis and, when configured, MariaDB answer.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{"redis": "ok"}
	status := http.StatusOK

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if a.DB != nil {
		checks["database"] = "ok"
		if err := a.DB.PingContext(ctx); err != nil {
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}
	return c.JSON(status, map[string]any{"status": result, "checks": checks})
}
