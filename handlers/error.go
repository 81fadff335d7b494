package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"ble-bridge/utils"

	"github.com/labstack/echo/v4"
)

var errorLogger = slog.Default()

// SetErrorLogger sets the logger for error handling.
func SetErrorLogger(logger *slog.Logger) {
	errorLogger = logger.With("component", "error_handler")
}

// CustomHTTPErrorHandler is the central error handler for the Echo application.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	logger := errorLogger.With("method", c.Request().Method, "path", c.Request().URL.Path)

	// Echo's own errors (404 route, 405 method) keep their status.
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, utils.ErrorResponse(fmt.Sprint(httpErr.Message)))
		return
	}

	// Attempt to cast the error to our custom AppError type.
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		logger.Error("Unhandled error occurred",
			"error_type", fmt.Sprintf("%T", err),
			slog.Any("error", err))

		_ = c.JSON(http.StatusInternalServerError, utils.ErrorResponse("An unexpected internal error occurred."))
		return
	}

	// If there's an underlying original error, log it for debugging purposes.
	if internalErr := appErr.Unwrap(); internalErr != nil {
		logger.Info("Error handled",
			"status_code", appErr.Code,
			"error_message", appErr.Message,
			slog.Any("internal_error", internalErr))
	}

	// Respond to the client with the code and message defined in the AppError.
	_ = c.JSON(appErr.Code, utils.ErrorResponse(appErr.Message))
}
