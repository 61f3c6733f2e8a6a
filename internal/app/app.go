// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance, auth Provider) and wires the plugins together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/authportal/internal/apperror"
	"github.com/keyxmakerx/authportal/internal/config"
	"github.com/keyxmakerx/authportal/internal/middleware"
	"github.com/keyxmakerx/authportal/internal/plugins/audit"
	"github.com/keyxmakerx/authportal/internal/plugins/auth"
	"github.com/keyxmakerx/authportal/internal/templates/layouts"
	"github.com/keyxmakerx/authportal/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB pool for the audit log. Nil disables auditing.
	DB *sql.DB

	// Redis holds the server-side sessions and submit locks.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Provider is the single writer of session state.
	Provider *auth.Provider

	// Audit is the auth event service, nil when auditing is off.
	Audit audit.AuditService

	cookies  *auth.Cookies
	recorder *audit.Recorder
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() must see the client, not the proxy: rate limiting and the
	// audit log depend on it.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	store := auth.NewRedisStore(rdb, cfg.Auth.SessionTTL)
	client := auth.NewHTTPClient(cfg.Auth.APIURL, cfg.Auth.APITimeout)
	provider := auth.NewProvider(client, store, auth.ProviderConfig{
		RevalidateInterval: cfg.Auth.RevalidateInterval,
		SignOutTimeout:     cfg.Auth.SignOutNotifyTimeout,
		SubmitLockTTL:      cfg.Auth.SubmitLockTTL,
	})

	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Echo:     e,
		Provider: provider,
		cookies:  auth.NewCookies(cfg.Auth.SecretKey, cfg.Auth.SessionTTL, cfg.IsProduction()),
	}

	if cfg.Audit.Enabled && db != nil {
		app.Audit = audit.NewAuditService(audit.NewAuditRepository(db))
		app.recorder = audit.NewRecorder(app.Audit, cfg.Auth.SignOutNotifyTimeout)
		provider.Subscribe(app.recorder.Listen)
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()
	middleware.LayoutInjector = injectLayout

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: the request logger is outermost so it sees the final status.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestLogger())

	// Panic recovery -- turns panics from everything below into 500s.
	a.Echo.Use(middleware.Recovery())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders(a.Config.IsProduction()))

	// CORS -- only the read-only /api/ surface answers cross-origin.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   []string{a.Config.BaseURL},
		AllowCredentials: true,
	}))

	// CSRF -- double-submit cookie pattern on all state-changing requests.
	a.Echo.Use(middleware.CSRF())

	// Session -- loads the browser's session once per request.
	a.Echo.Use(auth.Provide(a.Provider, a.cookies))
}

// injectLayout copies the per-request layout data into the template context.
func injectLayout(c echo.Context, ctx context.Context) context.Context {
	if ac := auth.FromContext(c); ac != nil && ac.IsAuthenticated() {
		user := ac.User()
		ctx = layouts.SetIsAuthenticated(ctx, true)
		ctx = layouts.SetUserName(ctx, user.Name())
		ctx = layouts.SetUserEmail(ctx, user.Email)
	}
	ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
	ctx = layouts.SetActivePath(ctx, c.Request().URL.Path)
	ctx = layouts.SetRequestID(ctx, middleware.GetRequestID(c))
	return ctx
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to appropriate HTTP responses, and renders error pages for
// browser requests or JSON for API requests.
//
// For HTMX partial requests that hit errors, we set HX-Retarget and
// HX-Reswap headers so the error page replaces the full body instead of
// being swapped into a partial target.
//
// For 401 errors on browser requests, we redirect to the login page.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok && code < 500 {
			message = msg
		} else {
			message = defaultErrorMessage(code)
		}
	case errors.Is(err, context.Canceled):
		// Browser went away; there is nobody to answer.
		c.Response().WriteHeader(499)
		return
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
		message = defaultErrorMessage(code)
		slog.Warn("request timed out",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	// API requests always get JSON.
	if isAPIRequest(c) {
		_ = c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		})
		return
	}

	// For HTMX requests, redirect to login on 401 so the browser navigates
	// instead of swapping error HTML into a fragment target.
	if middleware.IsHTMX(c) {
		if code == http.StatusUnauthorized {
			c.Response().Header().Set("HX-Redirect", auth.LoginPath)
			_ = c.NoContent(http.StatusNoContent)
			return
		}
		c.Response().Header().Set("HX-Retarget", "body")
		c.Response().Header().Set("HX-Reswap", "innerHTML")
		_ = middleware.Render(c, code, pages.ErrorFragment(code, message))
		return
	}

	if code == http.StatusUnauthorized {
		_ = c.Redirect(http.StatusSeeOther, auth.LoginPath)
		return
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = middleware.Render(c, code, pages.ErrorPage(code, message))
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to log in to access this page."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist or has been moved."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusBadGateway:
		return "The authentication service returned an unexpected response."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	case http.StatusGatewayTimeout:
		return "The request took too long. Please try again."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// isAPIRequest returns true if the request is targeting the API (JSON response expected).
func isAPIRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting authportal server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}

// Shutdown stops accepting requests, then waits for background API
// sign-outs and audit writes started by earlier requests.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	a.Provider.Wait()
	if a.recorder != nil {
		a.recorder.Wait()
	}
	return err
}
