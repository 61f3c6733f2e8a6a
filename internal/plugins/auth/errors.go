package auth

import (
	"errors"
	"fmt"
)

// Kind classifies a failed auth API call.
type Kind string

const (
	// KindNetwork covers an unreachable API, timeouts and 5xx answers.
	KindNetwork Kind = "network"
	// KindAuthentication means the API rejected the credentials or token.
	KindAuthentication Kind = "authentication"
	// KindValidation means the API rejected signup data (duplicate email,
	// malformed input).
	KindValidation Kind = "validation"
)

// Sentinels for errors.Is. Every *AuthError matches the one of its Kind.
var (
	ErrNetwork        = errors.New("auth: network error")
	ErrAuthentication = errors.New("auth: authentication failed")
	ErrValidation     = errors.New("auth: validation failed")
)

// AuthError is returned by AuthClient implementations.
type AuthError struct {
	Kind Kind

	// Status is the HTTP status the API answered with, 0 for transport errors.
	Status int

	// Message is the API's own explanation, if it sent one. It is
	// untrusted text and must be sanitized before display.
	Message string

	Err error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := fmt.Sprintf("auth %s error", e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying transport error, if any.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinels.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrAuthentication:
		return e.Kind == KindAuthentication
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// KindOf returns the Kind of err, or "" when err is not an *AuthError.
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

func networkError(status int, err error) *AuthError {
	return &AuthError{Kind: KindNetwork, Status: status, Err: err}
}
