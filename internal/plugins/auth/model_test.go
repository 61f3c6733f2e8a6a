package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthenticatedSession(t *testing.T) {
	user := &User{ID: "1", Email: "a@b.com"}
	s, err := NewAuthenticatedSession("t1", user, time.Time{}, testNow)
	require.NoError(t, err)

	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "t1", s.Token)
	assert.Equal(t, "a@b.com", s.User.Email)
	assert.Equal(t, testNow, s.ValidatedAt)
	assert.True(t, s.Valid())

	// The session owns its copy of the user.
	user.Email = "changed@b.com"
	assert.Equal(t, "a@b.com", s.User.Email)
}

func TestNewAuthenticatedSession_RejectsMissingParts(t *testing.T) {
	_, err := NewAuthenticatedSession("", &User{ID: "1"}, time.Time{}, testNow)
	assert.ErrorIs(t, err, errInvalidSession)

	_, err = NewAuthenticatedSession("t1", nil, time.Time{}, testNow)
	assert.ErrorIs(t, err, errInvalidSession)
}

func TestSession_Valid(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		want    bool
	}{
		{"nil", nil, false},
		{"unauthenticated", UnauthenticatedSession(), true},
		{"authenticated", &Session{IsAuthenticated: true, User: &User{ID: "1"}, Token: "t"}, true},
		{"authenticated without token", &Session{IsAuthenticated: true, User: &User{ID: "1"}}, false},
		{"authenticated without user", &Session{IsAuthenticated: true, Token: "t"}, false},
		{"unauthenticated with token", &Session{Token: "t"}, false},
		{"unauthenticated with user", &Session{User: &User{ID: "1"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.Valid())
		})
	}
}

func TestSession_Expired(t *testing.T) {
	s := &Session{IsAuthenticated: true, User: &User{ID: "1"}, Token: "t"}
	assert.False(t, s.Expired(testNow), "unknown expiry never expires")

	s.ExpiresAt = testNow.Add(time.Minute)
	assert.False(t, s.Expired(testNow))
	assert.True(t, s.Expired(testNow.Add(time.Minute)))
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := &Session{IsAuthenticated: true, User: &User{ID: "1", Email: "a@b.com"}, Token: "t"}
	c := s.Clone()
	c.User.Email = "x@y.com"
	assert.Equal(t, "a@b.com", s.User.Email)

	var nilSession *Session
	assert.False(t, nilSession.Clone().IsAuthenticated)
}

func TestUser_Name(t *testing.T) {
	assert.Equal(t, "Ada", (&User{Email: "a@b.com", DisplayName: "Ada"}).Name())
	assert.Equal(t, "a@b.com", (&User{Email: "a@b.com", DisplayName: "  "}).Name())
	assert.Equal(t, "", (*User)(nil).Name())
}
