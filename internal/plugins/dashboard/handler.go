// Package dashboard serves the protected landing page. It greets the
// signed-in user, lists their recent auth activity when the audit log is
// enabled, and offers a sign-out button.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/apperror"
	"github.com/keyxmakerx/authportal/internal/middleware"
	"github.com/keyxmakerx/authportal/internal/plugins/audit"
	"github.com/keyxmakerx/authportal/internal/plugins/auth"
)

// ActivitySource supplies the user's recent auth events. audit.AuditService
// satisfies it.
type ActivitySource interface {
	RecentForUser(ctx context.Context, userID string) ([]audit.AuthEvent, error)
	RecentFailures(ctx context.Context, email string) (int, error)
}

// Handler renders the dashboard. activity may be nil when the audit log is
// disabled.
type Handler struct {
	activity ActivitySource
}

// NewHandler creates a new dashboard handler.
func NewHandler(activity ActivitySource) *Handler {
	return &Handler{activity: activity}
}

// Show renders the dashboard (GET /dashboard). The route is guarded, so the
// session is authenticated here.
func (h *Handler) Show(c echo.Context) error {
	ac := auth.FromContext(c)
	if ac == nil || ac.User() == nil {
		return apperror.NewMissingContext()
	}

	view := dashboardView{User: ac.User(), ExpiresAt: ac.Session().ExpiresAt}
	h.loadActivity(c.Request().Context(), &view)

	return middleware.Render(c, http.StatusOK, DashboardPage(view))
}

// loadActivity fills the activity section. A failing audit log only hides
// the section; the dashboard still renders.
func (h *Handler) loadActivity(ctx context.Context, view *dashboardView) {
	if h.activity == nil {
		return
	}

	events, err := h.activity.RecentForUser(ctx, view.User.ID)
	if err != nil {
		slog.Warn("loading dashboard activity failed",
			slog.String("user_id", view.User.ID),
			slog.Any("error", err),
		)
		return
	}
	failures, err := h.activity.RecentFailures(ctx, view.User.Email)
	if err != nil {
		slog.Warn("counting sign-in failures failed",
			slog.String("user_id", view.User.ID),
			slog.Any("error", err),
		)
	}

	view.ShowActivity = true
	view.Events = events
	view.RecentFailures = failures
}
