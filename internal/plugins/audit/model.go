// Package audit records authentication events (sign-ins, sign-ups,
// sign-outs, failures, expiries) to the auth_events table. It subscribes to
// the auth Provider and never blocks it: writes happen in the background and
// failures are only logged. The dashboard shows each user their own recent
// activity from here.
//
// This is an optional plugin -- disable it with AUDIT_ENABLED=false.
package audit

import "time"

// --- Action Constants ---
// Actions follow the "resource.verb" pattern used by the auth Provider.

const (
	ActionSignedIn       = "auth.signed_in"
	ActionSignedUp       = "auth.signed_up"
	ActionSignedOut      = "auth.signed_out"
	ActionSignInFailed   = "auth.sign_in_failed"
	ActionSignUpFailed   = "auth.sign_up_failed"
	ActionSessionExpired = "auth.session_expired"
)

// AuthEvent is one row of the auth event log. The Details map holds
// action-specific metadata such as the failure kind.
type AuthEvent struct {
	ID      int64  `json:"-"`
	EventID string `json:"eventId"`

	// SessionRef is a short hash of the browser session id, enough to group
	// events of one session without storing the id itself.
	SessionRef string `json:"sessionRef,omitempty"`

	UserID    string         `json:"userId,omitempty"`
	Email     string         `json:"email,omitempty"`
	Action    string         `json:"action"`
	RemoteIP  string         `json:"remoteIp,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Label returns a human-readable description of the action.
func (e AuthEvent) Label() string {
	switch e.Action {
	case ActionSignedIn:
		return "Signed in"
	case ActionSignedUp:
		return "Created account"
	case ActionSignedOut:
		return "Signed out"
	case ActionSignInFailed:
		return "Failed sign-in attempt"
	case ActionSignUpFailed:
		return "Failed sign-up attempt"
	case ActionSessionExpired:
		return "Session expired"
	default:
		return e.Action
	}
}
