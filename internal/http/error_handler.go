package http

import (
	"errors"
	"fmt"
	"net/http"

	"asset-pipeline/internal/http/middleware"
	"asset-pipeline/internal/logger"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler handles all errors returned by handlers and middleware.
// It maps sentinel errors to appropriate HTTP status codes, sanitizes internal errors,
// and logs errors with request context.
func NewHTTPErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, message := statusFor(err)

		requestID := middleware.GetRequestID(c)
		if requestID == "" {
			requestID = "unknown"
		}

		if code >= http.StatusInternalServerError {
			log.Error("internal_server_error", "request_id", requestID, "status", code, "error", err)
			// Don't expose internal errors to clients
			message = "Internal server error"
		} else {
			log.Warn("client_error", "request_id", requestID, "status", code, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]interface{}{
				"error":      message,
				"request_id": requestID,
			})
		}
		if err != nil {
			log.Error("failed to write error response", "request_id", requestID, "error", err)
		}
	}
}

func statusFor(err error) (int, string) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, fmt.Sprintf("%v", httpErr.Message)
	}

	code := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = http.StatusNotFound, "Resource not found"
	case errors.Is(err, apperrors.ErrUnauthorized):
		code, message = http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, apperrors.ErrForbidden):
		code, message = http.StatusForbidden, "Forbidden"
	case errors.Is(err, apperrors.ErrBadRequest):
		code, message = http.StatusBadRequest, "Bad request"
	case errors.Is(err, apperrors.ErrValidation):
		code, message = http.StatusBadRequest, "Validation error"
	case errors.Is(err, apperrors.ErrConflict):
		code, message = http.StatusConflict, "Resource already exists"
	case errors.Is(err, apperrors.ErrExpired):
		code, message = http.StatusGone, "Resource expired"
	case errors.Is(err, apperrors.ErrUnavailable):
		code, message = http.StatusServiceUnavailable, "Service unavailable"
	}

	// Use the message from AppError if it's a client error
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && code < http.StatusInternalServerError {
		message = appErr.Message
	}

	return code, message
}
