// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers implements the JSON API.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/kantama/portal/internal/auth"
	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/applications"
	"codeberg.org/kantama/portal/internal/services/attachments"
	authsvc "codeberg.org/kantama/portal/internal/services/auth"
	"codeberg.org/kantama/portal/internal/services/financiers"
	"codeberg.org/kantama/portal/internal/sse"
	"github.com/labstack/echo/v4"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	repo         *repository.Repository
	auth         *authsvc.Service
	applications *applications.Service
	financiers   *financiers.Service
	attachments  *attachments.Service
	hub          *sse.Hub
	heartbeat    time.Duration
}

// Services bundles the services the handlers call.
type Services struct {
	Auth         *authsvc.Service
	Applications *applications.Service
	Financiers   *financiers.Service
	Attachments  *attachments.Service
	// Hub feeds the event stream; nil gets a private hub.
	Hub *sse.Hub
}

// New creates a new Handlers instance.
func New(repo *repository.Repository, svc Services) *Handlers {
	if svc.Hub == nil {
		svc.Hub = sse.NewHub()
	}
	return &Handlers{
		repo:         repo,
		auth:         svc.Auth,
		applications: svc.Applications,
		financiers:   svc.Financiers,
		attachments:  svc.Attachments,
		hub:          svc.Hub,
		heartbeat:    30 * time.Second,
	}
}

// Health reports whether the database answers.
func (h *Handlers) Health(c echo.Context) error {
	if h.repo != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.repo.DB().PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// MessageResponse carries a localized confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// currentUser returns the user stored by the Authenticate middleware.
func currentUser(c echo.Context) (*models.User, error) {
	user := auth.GetUser(c.Request().Context())
	if user == nil {
		return nil, authsvc.ErrInvalidSession
	}
	return user, nil
}

// pathID parses the :id route parameter. Malformed ids are not found.
func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, repository.ErrNotFound
	}
	return id, nil
}
