package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewServer builds the Echo instance serving the status API.
func NewServer(apiHandler *APIHandler, logger *slog.Logger) *echo.Echo {
	httpLogger := logger.With("component", "http")
	SetErrorLogger(logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			httpLogger.Debug("HTTP request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String())
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", apiHandler.HealthCheck)
	api.GET("/devices", apiHandler.ListDevices)
	api.GET("/devices/:id", apiHandler.GetDevice)
	api.GET("/devices/:id/history", apiHandler.GetDeviceHistory)

	return e
}
