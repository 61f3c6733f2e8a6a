package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditRepository defines the data access contract for the auth event log.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type AuditRepository interface {
	// Log inserts a new event.
	Log(ctx context.Context, event *AuthEvent) error

	// ListByUser returns a user's most recent events, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]AuthEvent, error)

	// CountFailuresSince counts failed sign-ins for an email since a time.
	CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error)
}

// auditRepository implements AuditRepository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Log inserts an event. The details map is serialized to JSON before
// storage. Nil details are stored as SQL NULL.
func (r *auditRepository) Log(ctx context.Context, event *AuthEvent) error {
	query := `INSERT INTO auth_events
	          (event_id, session_ref, user_id, email, action, remote_ip, user_agent, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling event details: %w", err)
		}
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		event.EventID, event.SessionRef, event.UserID, event.Email, event.Action,
		event.RemoteIP, event.UserAgent, detailsJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting auth event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting auth event id: %w", err)
	}
	event.ID = id
	return nil
}

// ListByUser returns the user's events ordered by most recent first.
func (r *auditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]AuthEvent, error) {
	query := `SELECT id, event_id, session_ref, user_id, email, action,
	                 remote_ip, user_agent, details, created_at
	          FROM auth_events
	          WHERE user_id = ?
	          ORDER BY created_at DESC, id DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing auth events: %w", err)
	}
	defer rows.Close()

	return scanEventRows(rows)
}

// CountFailuresSince counts sign-in failures for email after since.
func (r *auditRepository) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_events WHERE email = ? AND action = ? AND created_at >= ?`,
		email, ActionSignInFailed, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting sign-in failures: %w", err)
	}
	return count, nil
}

// scanEventRows scans rows from an auth_events query. Expects columns: id,
// event_id, session_ref, user_id, email, action, remote_ip, user_agent,
// details, created_at.
func scanEventRows(rows *sql.Rows) ([]AuthEvent, error) {
	var events []AuthEvent
	for rows.Next() {
		var e AuthEvent
		var detailsJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.EventID, &e.SessionRef, &e.UserID, &e.Email, &e.Action,
			&e.RemoteIP, &e.UserAgent, &detailsJSON, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning auth event: %w", err)
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				// Non-fatal: a bad row must not break the feed.
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating auth event rows: %w", err)
	}
	return events, nil
}
