// Package auth holds the browser-facing authentication core of authportal:
// the per-browser Session, the client for the external auth API, the Redis
// session store, the Provider that is the single writer of sessions, the
// request-scoped AuthContext, the route guard and the login/signup pages.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"errors"
	"strings"
	"time"
)

// User is the identity record returned by the auth API for a signed-in
// browser. Only what the pages need is kept.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Name returns the display name, falling back to the email address.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if strings.TrimSpace(u.DisplayName) != "" {
		return u.DisplayName
	}
	return u.Email
}

// Session is the authentication state of one browser. User and Token are
// set if and only if IsAuthenticated is true; use the constructors below
// rather than filling the struct by hand.
type Session struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	User            *User  `json:"user,omitempty"`
	Token           string `json:"token,omitempty"`

	// ExpiresAt is when the API token stops being valid. Zero when the API
	// did not say and the token carries no exp claim.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// SignedInAt is when the session became authenticated.
	SignedInAt time.Time `json:"signed_in_at,omitempty"`

	// ValidatedAt is the last time the API confirmed the token.
	ValidatedAt time.Time `json:"validated_at,omitempty"`
}

// errInvalidSession is returned when a session breaks the user/token invariant.
var errInvalidSession = errors.New("auth: session violates user/token invariant")

// UnauthenticatedSession returns the empty session every browser starts with.
func UnauthenticatedSession() *Session {
	return &Session{}
}

// NewAuthenticatedSession builds a signed-in session from an API result.
func NewAuthenticatedSession(token string, user *User, expiresAt, now time.Time) (*Session, error) {
	if token == "" || user == nil {
		return nil, errInvalidSession
	}
	copied := *user
	now = now.UTC()
	return &Session{
		IsAuthenticated: true,
		User:            &copied,
		Token:           token,
		ExpiresAt:       expiresAt.UTC(),
		SignedInAt:      now,
		ValidatedAt:     now,
	}, nil
}

// Valid reports whether the session honours the invariant that user and
// token are present exactly when the session is authenticated.
func (s *Session) Valid() bool {
	if s == nil {
		return false
	}
	if s.IsAuthenticated {
		return s.User != nil && s.Token != ""
	}
	return s.User == nil && s.Token == ""
}

// Expired reports whether a known expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return UnauthenticatedSession()
	}
	out := *s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return &out
}

// Credentials is the email/password pair submitted by the login form. It is
// handed to the API client and never stored.
type Credentials struct {
	Email    string
	Password string
}

// SignUpInput is what the signup form submits to the API.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// AuthResult is what the API returns for a successful login or signup.
type AuthResult struct {
	Token     string
	User      *User
	ExpiresAt time.Time
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Next     string `json:"next" form:"next"`
}

// SignupRequest holds the data submitted by the signup form.
type SignupRequest struct {
	Email       string `json:"email" form:"email"`
	DisplayName string `json:"display_name" form:"display_name"`
	Password    string `json:"password" form:"password"`
	Confirm     string `json:"confirm" form:"confirm"`
}

// SessionView is the JSON shape of GET /api/v1/session. The token is
// deliberately absent.
type SessionView struct {
	IsAuthenticated bool       `json:"isAuthenticated"`
	User            *User      `json:"user,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// normalizeEmail trims and lowercases an email address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
