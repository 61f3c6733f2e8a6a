package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/apperror"
	"github.com/keyxmakerx/authportal/internal/plugins/auth"
)

// Handler serves the signed-in user's own activity log. Handlers are thin:
// read the session, call service, render response.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// activityResponse is the JSON body of GET /api/v1/activity.
type activityResponse struct {
	Events         []AuthEvent `json:"events"`
	RecentFailures int         `json:"recentFailures"`
}

// Activity returns the user's recent auth events (GET /api/v1/activity).
// The route is guarded, so the session is always authenticated here.
func (h *Handler) Activity(c echo.Context) error {
	ac := auth.FromContext(c)
	if ac == nil || ac.User() == nil {
		return apperror.NewMissingContext()
	}
	user := ac.User()
	ctx := c.Request().Context()

	events, err := h.service.RecentForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	failures, err := h.service.RecentFailures(ctx, user.Email)
	if err != nil {
		return err
	}

	if events == nil {
		events = []AuthEvent{}
	}
	return c.JSON(http.StatusOK, activityResponse{Events: events, RecentFailures: failures})
}
