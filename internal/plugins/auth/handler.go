package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/apperror"
	"github.com/keyxmakerx/authportal/internal/middleware"
	"github.com/keyxmakerx/authportal/internal/sanitize"
)

// Messages shown inline on the auth forms.
const (
	msgLoginFailed   = "Failed to log in"
	msgSignupFailed  = "Failed to sign up"
	msgUnavailable   = "The authentication service is unavailable. Please try again."
	msgInProgress    = "A request is already in progress. Please wait."
	msgMissingFields = "Email and password are required"
)

// Handler handles HTTP requests for authentication (login, signup, logout).
// Handlers are thin: they bind the request, call the AuthContext, and render
// the response. No session logic lives here.
type Handler struct{}

// NewHandler creates a new auth handler.
func NewHandler() *Handler {
	return &Handler{}
}

// LoginForm renders the login page (GET /login).
func (h *Handler) LoginForm(c echo.Context) error {
	ac := FromContext(c)
	if ac == nil {
		return apperror.NewMissingContext()
	}
	next := c.QueryParam("next")

	// If the user already has a valid session, skip the form.
	if ac.IsAuthenticated() {
		return c.Redirect(http.StatusSeeOther, SafeNext(next))
	}
	return middleware.Render(c, http.StatusOK, LoginPage(loginView{Next: next}))
}

// Login processes the login form submission (POST /login).
func (h *Handler) Login(c echo.Context) error {
	ac := FromContext(c)
	if ac == nil {
		return apperror.NewMissingContext()
	}

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	view := loginView{Email: strings.TrimSpace(req.Email), Next: req.Next}

	if view.Email == "" || req.Password == "" {
		view.Error = msgMissingFields
		return renderForm(c, LoginForm(view), LoginPage(view))
	}

	release, ok, err := ac.BeginSubmit()
	if err != nil {
		return err
	}
	if !ok {
		view.Error = msgInProgress
		return renderForm(c, LoginForm(view), LoginPage(view))
	}
	defer release()

	err = ac.SignIn(Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		// Browser gone: nothing to render.
		if ctxErr := c.Request().Context().Err(); ctxErr != nil {
			return ctxErr
		}
		view.Error = loginErrorMessage(err)
		return renderForm(c, LoginForm(view), LoginPage(view))
	}

	return redirect(c, SafeNext(req.Next))
}

// SignupForm renders the signup page (GET /signup).
func (h *Handler) SignupForm(c echo.Context) error {
	ac := FromContext(c)
	if ac == nil {
		return apperror.NewMissingContext()
	}
	if ac.IsAuthenticated() {
		return c.Redirect(http.StatusSeeOther, DefaultLanding)
	}
	return middleware.Render(c, http.StatusOK, SignupPage(signupView{}))
}

// Signup processes the signup form submission (POST /signup).
func (h *Handler) Signup(c echo.Context) error {
	ac := FromContext(c)
	if ac == nil {
		return apperror.NewMissingContext()
	}

	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	view := signupView{
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
	}

	// Basic server-side validation.
	if msg := validateSignupRequest(&req); msg != "" {
		view.Error = msg
		return renderForm(c, SignupForm(view), SignupPage(view))
	}

	release, ok, err := ac.BeginSubmit()
	if err != nil {
		return err
	}
	if !ok {
		view.Error = msgInProgress
		return renderForm(c, SignupForm(view), SignupPage(view))
	}
	defer release()

	err = ac.SignUp(SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		if ctxErr := c.Request().Context().Err(); ctxErr != nil {
			return ctxErr
		}
		view.Error = signupErrorMessage(err)
		return renderForm(c, SignupForm(view), SignupPage(view))
	}

	return redirect(c, DefaultLanding)
}

// Logout signs the browser out and returns to the login page (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	ac := FromContext(c)
	if ac == nil {
		return apperror.NewMissingContext()
	}
	ac.SignOut()
	return redirect(c, LoginPath)
}

// Session returns the read-only session view for script clients
// (GET /api/v1/session). The token never leaves the server.
func (h *Handler) Session(c echo.Context) error {
	ac := FromContext(c)
	if ac == nil {
		return apperror.NewMissingContext()
	}
	session := ac.Session()
	view := SessionView{IsAuthenticated: session.IsAuthenticated, User: session.User}
	if session.IsAuthenticated && !session.ExpiresAt.IsZero() {
		exp := session.ExpiresAt
		view.ExpiresAt = &exp
	}
	return c.JSON(http.StatusOK, view)
}

// --- Response helpers ---

// renderForm re-renders a form after a failed submission: the fragment for
// HTMX, the whole page otherwise.
func renderForm(c echo.Context, fragment, page templ.Component) error {
	if middleware.IsHTMX(c) {
		return middleware.Render(c, http.StatusOK, fragment)
	}
	return middleware.Render(c, http.StatusOK, page)
}

// redirect sends HTMX requests an HX-Redirect header and browsers a 303.
func redirect(c echo.Context, target string) error {
	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", target)
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// loginErrorMessage maps a sign-in failure to the text shown on the form.
// Wrong credentials and anything unexpected read the same.
func loginErrorMessage(err error) string {
	if errors.Is(err, ErrNetwork) {
		return msgUnavailable
	}
	if KindOf(err) == "" {
		slog.Error("sign in failed unexpectedly", slog.Any("error", err))
	}
	return msgLoginFailed
}

// signupErrorMessage maps a sign-up failure to the text shown on the form.
// The API's own validation message is shown when it sent one.
func signupErrorMessage(err error) string {
	var authErr *AuthError
	switch {
	case errors.Is(err, ErrNetwork):
		return msgUnavailable
	case errors.As(err, &authErr) && authErr.Kind == KindValidation:
		if msg := sanitize.Text(authErr.Message); msg != "" {
			return msg
		}
	case KindOf(err) == "":
		slog.Error("sign up failed unexpectedly", slog.Any("error", err))
	}
	return msgSignupFailed
}

// --- Validation helpers ---

// validateSignupRequest performs basic server-side validation on the
// signup form. Returns an error message or empty string.
func validateSignupRequest(req *SignupRequest) string {
	if strings.TrimSpace(req.Email) == "" {
		return "email is required"
	}
	if !strings.Contains(req.Email, "@") {
		return "email is not valid"
	}
	if len(req.DisplayName) > 100 {
		return "display name must be at most 100 characters"
	}
	if req.Password == "" {
		return "password is required"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	if len(req.Password) > 128 {
		return "password must be at most 128 characters"
	}
	if req.Confirm != req.Password {
		return "passwords do not match"
	}
	return ""
}
