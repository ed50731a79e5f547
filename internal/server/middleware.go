// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/kantama/portal/internal/auth"
	"codeberg.org/kantama/portal/internal/config"
	"codeberg.org/kantama/portal/internal/metrics"
	portalmw "codeberg.org/kantama/portal/internal/middleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func setupMiddleware(e *echo.Echo, cfg *config.Config) {
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(portalmw.RequestID())
	e.Use(requestLogger())
	e.Use(metrics.Middleware())
	e.Use(middleware.Secure())
	e.Use(corsMiddleware(cfg))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/events"
		},
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", bodyLimitMB(cfg))))
	e.Use(portalmw.Locale())
}

// bodyLimitMB is the larger of the JSON and upload limits. Uploads are
// additionally capped by the attachment store.
func bodyLimitMB(cfg *config.Config) int {
	return max(cfg.Server.MaxBodySize, cfg.Storage.MaxUploadSize+1, 1)
}

// corsMiddleware lets the frontend origin call the API with bearer tokens.
func corsMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	origins := []string{cfg.Server.FrontendURL}
	if cfg.Server.BaseURL != cfg.Server.FrontendURL {
		origins = append(origins, cfg.Server.BaseURL)
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "Accept-Language"},
		MaxAge:       3600,
	})
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogRequestID: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
			}
			if user := auth.GetUser(c.Request().Context()); user != nil {
				attrs = append(attrs, slog.Int64("user_id", user.ID))
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}
