// Package devauth is a small implementation of the external authentication
// API the portal talks to. It exists for local development and integration
// tests: users live in MariaDB, passwords are argon2id hashes and tokens are
// HS256 JWTs carrying exp. Signed-out tokens are remembered in Redis until
// they would have expired anyway.
//
// It serves POST /login, POST /signup, POST /logout and GET /me with the
// JSON shapes internal/plugins/auth expects.
package devauth

import "time"

// User is a dev API account.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"-"`
	LastLoginAt  *time.Time `json:"-"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the body of POST /signup.
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Session is an issued token and the user it belongs to.
type Session struct {
	Token     string
	User      *User
	ExpiresAt time.Time
}

// authResponse is the JSON answer to a successful login or signup.
type authResponse struct {
	Token     string `json:"token"`
	User      *User  `json:"user"`
	ExpiresAt string `json:"expires_at"`
}

// meResponse is the JSON answer to GET /me.
type meResponse struct {
	User *User `json:"user"`
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
