package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keyxmakerx/authportal/internal/apperror"
)

// recentLimit is the number of events shown on the dashboard.
const recentLimit = 20

// failureWindow is how far back the dashboard counts failed sign-ins.
const failureWindow = 24 * time.Hour

// AuditService handles business logic for the auth event log. It validates
// inputs, enforces limits, and delegates persistence to the repository.
type AuditService interface {
	// Log records an event. Errors are logged here so background callers
	// can ignore them.
	Log(ctx context.Context, event *AuthEvent) error

	// RecentForUser returns the user's latest events, newest first.
	RecentForUser(ctx context.Context, userID string) ([]AuthEvent, error)

	// RecentFailures counts failed sign-ins against email in the last day.
	RecentFailures(ctx context.Context, email string) (int, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
	now  func() time.Time
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo, now: time.Now}
}

// Log validates and persists an event.
func (s *auditService) Log(ctx context.Context, event *AuthEvent) error {
	if event.Action == "" {
		return apperror.NewBadRequest("action is required for auth event")
	}
	if event.EventID == "" {
		return apperror.NewBadRequest("event ID is required for auth event")
	}

	if err := s.repo.Log(ctx, event); err != nil {
		slog.Error("failed to write auth event",
			slog.String("action", event.Action),
			slog.String("user_id", event.UserID),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing auth event: %w", err))
	}
	return nil
}

// RecentForUser returns the user's latest events.
func (s *auditService) RecentForUser(ctx context.Context, userID string) ([]AuthEvent, error) {
	if userID == "" {
		return nil, apperror.NewBadRequest("user ID is required")
	}

	events, err := s.repo.ListByUser(ctx, userID, recentLimit)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing user events: %w", err))
	}
	return events, nil
}

// RecentFailures counts failed sign-ins in the last failureWindow.
func (s *auditService) RecentFailures(ctx context.Context, email string) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, nil
	}

	n, err := s.repo.CountFailuresSince(ctx, email, s.now().UTC().Add(-failureWindow))
	if err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("counting sign-in failures: %w", err))
	}
	return n, nil
}
