// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds the portal's echo middleware.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"codeberg.org/kantama/portal/internal/auth"
	"codeberg.org/kantama/portal/internal/models"
	authsvc "codeberg.org/kantama/portal/internal/services/auth"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// SessionResolver resolves a bearer token to its user.
type SessionResolver interface {
	CurrentUser(ctx context.Context, session string) (*models.User, error)
}

// Authenticate requires a valid bearer session and stores its user in the
// request context. Failures are returned to the error handler.
func Authenticate(resolver SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return authsvc.ErrInvalidSession
			}

			user, err := resolver.CurrentUser(c.Request().Context(), strings.TrimSpace(raw))
			if err != nil {
				return err
			}

			ctx := auth.SetUser(c.Request().Context(), user)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireRole allows only users holding one of roles. It must run after
// Authenticate.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := auth.GetUser(c.Request().Context())
			if user == nil {
				return authsvc.ErrInvalidSession
			}
			if !lo.Contains(roles, user.Role) {
				return echo.NewHTTPError(http.StatusForbidden)
			}
			return next(c)
		}
	}
}
