package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
)

// sessionCookieName is the HTTP cookie carrying the signed session id.
const sessionCookieName = "authportal_session"

// sessionIDBytes is the number of random bytes in a session id.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionIDBytes = 32

// Cookies signs and verifies the session-id cookie. The browser never sees
// the API token; it only holds this id.
type Cookies struct {
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
}

// NewCookies builds the cookie codec from the app secret. secure marks the
// cookie Secure for TLS deployments.
func NewCookies(secret string, maxAge time.Duration, secure bool) *Cookies {
	codec := securecookie.New([]byte(secret), nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(maxAge.Seconds()))
	return &Cookies{codec: codec, maxAge: maxAge, secure: secure}
}

// Read returns the verified session id from the request, or "" when the
// cookie is missing, tampered with or too old.
func (k *Cookies) Read(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	var id string
	if err := k.codec.Decode(sessionCookieName, cookie.Value, &id); err != nil {
		return ""
	}
	return id
}

// Write sets the signed cookie for id. The cookie is HttpOnly (JS can't
// read it), Secure behind TLS, and SameSite=Lax.
func (k *Cookies) Write(c echo.Context, id string) error {
	encoded, err := k.codec.Encode(sessionCookieName, id)
	if err != nil {
		return fmt.Errorf("encoding session cookie: %w", err)
	}
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   k.secure || req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(k.maxAge.Seconds()),
	})
	return nil
}

// Clear removes the session cookie by setting MaxAge to -1.
func (k *Cookies) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// newSessionID generates a cryptographically random session id.
func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
