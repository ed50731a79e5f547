// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/kantama/portal/internal/auth"
	"codeberg.org/kantama/portal/internal/config"
	"codeberg.org/kantama/portal/internal/i18n"
	"codeberg.org/kantama/portal/internal/middleware"
	"codeberg.org/kantama/portal/internal/models"
	authsvc "codeberg.org/kantama/portal/internal/services/auth"
	"codeberg.org/kantama/portal/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	users map[string]*models.User
	err   error
}

func (s stubResolver) CurrentUser(_ context.Context, session string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[session]; ok {
		return u, nil
	}
	return nil, authsvc.ErrInvalidSession
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func TestAuthenticate(t *testing.T) {
	customer := &models.User{ID: 1, Role: models.RoleCustomer}
	mw := middleware.Authenticate(stubResolver{users: map[string]*models.User{"good": customer}})
	e := echo.New()

	t.Run("valid bearer", func(t *testing.T) {
		c, rec := testutil.NewEchoContext(e, http.MethodGet, "/api/auth/me", nil)
		c.Request().Header.Set(echo.HeaderAuthorization, "Bearer good")

		var seen *models.User
		err := mw(func(c echo.Context) error {
			seen = auth.GetUser(c.Request().Context())
			return okHandler(c)
		})(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Same(t, customer, seen)
	})

	for name, header := range map[string]string{
		"missing":       "",
		"wrong scheme":  "Basic good",
		"empty bearer":  "Bearer ",
		"unknown token": "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := testutil.NewEchoContext(e, http.MethodGet, "/api/auth/me", nil)
			if header != "" {
				c.Request().Header.Set(echo.HeaderAuthorization, header)
			}

			err := mw(okHandler)(c)

			assert.ErrorIs(t, err, authsvc.ErrInvalidSession)
		})
	}

	t.Run("inactive account", func(t *testing.T) {
		mw := middleware.Authenticate(stubResolver{err: authsvc.ErrAccountInactive})
		c, _ := testutil.NewEchoContext(e, http.MethodGet, "/api/auth/me", nil)
		c.Request().Header.Set(echo.HeaderAuthorization, "Bearer good")

		assert.ErrorIs(t, mw(okHandler)(c), authsvc.ErrAccountInactive)
	})
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	mw := middleware.RequireRole(models.RoleAdmin, models.RoleFinancierStaff)

	for role, allowed := range map[models.Role]bool{
		models.RoleAdmin:          true,
		models.RoleFinancierStaff: true,
		models.RoleCustomer:       false,
	} {
		t.Run(string(role), func(t *testing.T) {
			c, _ := testutil.NewEchoContext(e, http.MethodGet, "/api/financiers", nil)
			c.SetRequest(c.Request().WithContext(auth.SetUser(c.Request().Context(), &models.User{ID: 1, Role: role})))

			err := mw(okHandler)(c)

			if allowed {
				assert.NoError(t, err)
				return
			}
			var he *echo.HTTPError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, http.StatusForbidden, he.Code)
		})
	}

	t.Run("anonymous", func(t *testing.T) {
		c, _ := testutil.NewEchoContext(e, http.MethodGet, "/api/financiers", nil)
		assert.ErrorIs(t, mw(okHandler)(c), authsvc.ErrInvalidSession)
	})
}

func TestLocale(t *testing.T) {
	require.NoError(t, i18n.Init())
	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/", nil)
	c.Request().Header.Set("Accept-Language", "fi-FI, en;q=0.5")

	var locale string
	err := middleware.Locale()(func(c echo.Context) error {
		locale = i18n.GetLocale(c.Request().Context())
		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, "fi", locale)
	assert.Equal(t, "fi", rec.Header().Get("Content-Language"))
}

func TestRequestID(t *testing.T) {
	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/", nil)
	rec.Header().Set(echo.HeaderXRequestID, "abc")

	var id string
	err := middleware.RequestID()(func(c echo.Context) error {
		id = auth.GetRequestID(c.Request().Context())
		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func newLimitedEcho(t *testing.T, cfg config.RateLimitConfig, now func() time.Time) (*echo.Echo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := echo.New()
	e.POST("/api/auth/login", okHandler, middleware.RateLimit(cfg, rdb, now))
	return e, mr
}

func login(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: 10 * time.Second,
		TTL:            time.Minute,
		Prefix:         "test:rl",
	}
	clock := testutil.NewClock(time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC))
	e, _ := newLimitedEcho(t, cfg, clock.Now)

	assert.Equal(t, http.StatusNoContent, login(e, "10.0.0.1").Code)
	rec := login(e, "10.0.0.1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = login(e, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")

	// buckets are per client
	assert.Equal(t, http.StatusNoContent, login(e, "10.0.0.2").Code)

	clock.Advance(10 * time.Second)
	assert.Equal(t, http.StatusNoContent, login(e, "10.0.0.1").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e, mr := newLimitedEcho(t, cfg, nil)
	mr.Close()

	for range 3 {
		assert.Equal(t, http.StatusNoContent, login(e, "10.0.0.1").Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	e := echo.New()
	e.POST("/api/auth/login", okHandler, middleware.RateLimit(config.RateLimitConfig{Enabled: false}, nil, nil))

	for range 5 {
		assert.Equal(t, http.StatusNoContent, login(e, "10.0.0.1").Code)
	}
}
