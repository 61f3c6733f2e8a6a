package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/apperror"
)

// DefaultLanding is where signed-in users go when no valid return path exists.
const DefaultLanding = "/dashboard"

// LoginPath is the login page route.
const LoginPath = "/login"

// State is the guard's verdict on a session.
type State int

const (
	// StateUnauthenticated means no usable session: redirect to login.
	StateUnauthenticated State = iota
	// StateAuthenticated means render the protected content.
	StateAuthenticated
	// StatePending means the session has to be re-checked with the API
	// before either of the above can be decided.
	StatePending
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StatePending:
		return "pending"
	default:
		return "unauthenticated"
	}
}

// Evaluate decides what the guard does with session at now. A session
// validated longer than revalidate ago is pending; revalidate <= 0 never
// makes a session pending.
func Evaluate(session *Session, now time.Time, revalidate time.Duration) State {
	if session == nil || !session.IsAuthenticated || !session.Valid() {
		return StateUnauthenticated
	}
	if session.Expired(now) {
		return StateUnauthenticated
	}
	if revalidate > 0 && now.Sub(session.ValidatedAt) >= revalidate {
		return StatePending
	}
	return StateAuthenticated
}

// Guard returns middleware protecting a route. Unauthenticated browsers are
// sent to the login page with the original path as the return target;
// pending sessions are resolved against the API before anything is decided.
func Guard(provider *Provider) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac := FromContext(c)
			if ac == nil {
				return apperror.NewMissingContext()
			}

			state := Evaluate(ac.session, provider.Now(), provider.RevalidateInterval())
			if state == StatePending {
				restored, err := provider.Restore(c.Request().Context(), ac.id, ac.session)
				if err != nil {
					if errors.Is(err, c.Request().Context().Err()) {
						return err
					}
					slog.Warn("restoring session", slog.Any("error", err))
				}
				ac.replace(restored)
				state = Evaluate(restored, provider.Now(), 0)
			} else if state == StateUnauthenticated && ac.session.IsAuthenticated {
				// Expired since the session was loaded.
				ac.replace(provider.Expire(c.Request().Context(), ac.id, ac.session))
			}

			if state != StateAuthenticated {
				return handleUnauthenticated(c)
			}
			return next(c)
		}
	}
}

// handleUnauthenticated returns the appropriate response for unauthenticated
// requests: redirect for browsers, 401 JSON for API clients.
func handleUnauthenticated(c echo.Context) error {
	// API requests get a JSON 401 response.
	if isAPIRequest(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}

	target := LoginRedirectURL(c.Request().URL.RequestURI())

	// HTMX requests get a redirect header so the full page navigates.
	if isHTMXRequest(c) {
		c.Response().Header().Set("HX-Redirect", target)
		return c.NoContent(http.StatusNoContent)
	}

	// Regular browser requests get a 303 redirect to login.
	return c.Redirect(http.StatusSeeOther, target)
}

// LoginRedirectURL builds the login URL that returns to target after
// sign-in. Unsafe or default targets are left off.
func LoginRedirectURL(target string) string {
	next := SafeNext(target)
	if next == DefaultLanding && target != DefaultLanding {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(next)
}

// SafeNext returns target when it is a local absolute path, otherwise
// DefaultLanding. This keeps the next parameter from becoming an open
// redirect.
func SafeNext(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") {
		return DefaultLanding
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return DefaultLanding
	}
	if strings.ContainsAny(target, "\r\n\t") || strings.Contains(target, "\\") {
		return DefaultLanding
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return DefaultLanding
	}
	// Bouncing back to the auth pages would loop.
	if u.Path == LoginPath || u.Path == "/signup" {
		return DefaultLanding
	}
	return target
}

// isAPIRequest returns true if the request targets the /api/ path.
func isAPIRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

// isHTMXRequest returns true if the request was made by HTMX.
func isHTMXRequest(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}
