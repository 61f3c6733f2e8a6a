package devauth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/authportal/internal/apperror"
	"github.com/keyxmakerx/authportal/internal/middleware"
)

// NewServer builds the dev API's Echo instance with logging, recovery and
// JSON error responses.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recovery())
	e.HTTPErrorHandler = errorHandler

	RegisterRoutes(e, h)
	return e
}

// errorHandler renders every error as {"error": type, "message": text}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	resp := errorResponse{Error: "internal_error", Message: "An unexpected error occurred."}

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		resp = errorResponse{Error: appErr.Type, Message: appErr.Message}
		if appErr.Internal != nil {
			slog.Error("devauth internal error",
				slog.String("path", c.Request().URL.Path),
				slog.Any("internal", appErr.Internal),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		resp.Error = "http_error"
		resp.Message = http.StatusText(code)
		if msg, ok := echoErr.Message.(string); ok {
			resp.Message = msg
		}
	default:
		slog.Error("devauth unhandled error",
			slog.String("path", c.Request().URL.Path),
			slog.Any("error", err),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, resp)
}
