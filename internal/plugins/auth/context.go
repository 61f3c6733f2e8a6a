package auth

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/apperror"
)

// contextKeyAuth is the Echo context key holding the request's *AuthContext.
// Other plugins read it through FromContext.
const contextKeyAuth = "auth_context"

// AuthContext is the per-request view of a browser's authentication state
// plus the operations that change it. Reads never touch Redis after the
// Provide middleware loaded the session; writes go through the Provider.
type AuthContext struct {
	provider *Provider
	cookies  *Cookies
	c        echo.Context

	id      string
	session *Session
}

// FromContext returns the request's AuthContext, or nil when the Provide
// middleware did not run.
func FromContext(c echo.Context) *AuthContext {
	ac, ok := c.Get(contextKeyAuth).(*AuthContext)
	if !ok {
		return nil
	}
	return ac
}

// Session returns a copy of the current session.
func (a *AuthContext) Session() *Session {
	return a.session.Clone()
}

// IsAuthenticated reports whether the browser is signed in.
func (a *AuthContext) IsAuthenticated() bool {
	return a.session.IsAuthenticated
}

// User returns the signed-in user, or nil.
func (a *AuthContext) User() *User {
	if !a.session.IsAuthenticated {
		return nil
	}
	u := *a.session.User
	return &u
}

// SignIn authenticates creds and binds the browser to a fresh session id.
// The previous id, if any, is discarded so a planted id never becomes
// authenticated.
func (a *AuthContext) SignIn(creds Credentials) error {
	return a.establish(func(id string) (*Session, error) {
		return a.provider.SignIn(a.c.Request().Context(), id, creds)
	})
}

// SignUp registers a new account and signs it in, rotating the session id
// like SignIn.
func (a *AuthContext) SignUp(input SignUpInput) error {
	return a.establish(func(id string) (*Session, error) {
		return a.provider.SignUp(a.c.Request().Context(), id, input)
	})
}

func (a *AuthContext) establish(op func(id string) (*Session, error)) error {
	newID, err := newSessionID()
	if err != nil {
		return apperror.NewInternal(err)
	}
	session, err := op(newID)
	if err != nil {
		return err
	}

	// Signing in over a live session signs the old one out.
	if a.id != "" {
		if a.session.IsAuthenticated {
			a.provider.SignOut(a.c.Request().Context(), a.id)
		} else {
			a.provider.Discard(a.c.Request().Context(), a.id)
		}
	}
	if err := a.cookies.Write(a.c, newID); err != nil {
		return apperror.NewInternal(err)
	}
	a.id = newID
	a.session = session
	return nil
}

// SignOut clears the session and the cookie. It cannot fail.
func (a *AuthContext) SignOut() {
	a.session = a.provider.SignOut(a.c.Request().Context(), a.id)
	a.cookies.Clear(a.c)
	a.id = ""
}

// BeginSubmit takes the per-browser lock for a login or signup submission.
// ok is false when another submission from the same browser is in flight.
// The returned release must be called when ok is true.
func (a *AuthContext) BeginSubmit() (release func(), ok bool, err error) {
	ctx := a.c.Request().Context()
	if a.id == "" {
		// First submission from this browser: give it an id to lock on.
		id, err := newSessionID()
		if err != nil {
			return nil, false, apperror.NewInternal(err)
		}
		if err := a.cookies.Write(a.c, id); err != nil {
			return nil, false, apperror.NewInternal(err)
		}
		a.id = id
	}

	lockID := a.id
	ok, err = a.provider.AcquireSubmit(ctx, lockID)
	if err != nil {
		return nil, false, apperror.NewInternal(err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() { a.provider.ReleaseSubmit(ctx, lockID) }, true, nil
}

// replace swaps in a session the guard resolved (restored or cleared).
func (a *AuthContext) replace(session *Session) {
	a.session = session
	if !session.IsAuthenticated && a.id != "" {
		a.cookies.Clear(a.c)
		a.id = ""
	}
}

// Provide returns middleware that loads the browser's session once per
// request and exposes it through FromContext. It must run before any
// handler or guard that reads authentication state.
func Provide(provider *Provider, cookies *Cookies) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := WithRequestMeta(req.Context(), RequestMeta{
				RemoteIP:  c.RealIP(),
				UserAgent: req.UserAgent(),
			})
			c.SetRequest(req.WithContext(ctx))

			id := cookies.Read(c)
			session, err := provider.Load(ctx, id)
			if err != nil {
				return apperror.NewInternal(fmt.Errorf("loading session: %w", err))
			}

			ac := &AuthContext{
				provider: provider,
				cookies:  cookies,
				c:        c,
				id:       id,
				session:  session,
			}
			c.Set(contextKeyAuth, ac)
			return next(c)
		}
	}
}
