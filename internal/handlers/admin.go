// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/kantama/portal/internal/models"
	authsvc "codeberg.org/kantama/portal/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// CreateUserRequest is the body of POST /admin/users.
type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=72"`
	Role        string `json:"role" validate:"required,role"`
	FinancierID *int64 `json:"financier_id" validate:"omitempty,gt=0"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	Phone       string `json:"phone" validate:"max=40"`
}

// ListUsers returns all accounts.
func (h *Handlers) ListUsers(c echo.Context) error {
	users, err := h.auth.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

// CreateUser creates an admin or financier staff account.
func (h *Handlers) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.checkPassword(req.Password, req.Email, req.FirstName, req.LastName); err != nil {
		return err
	}

	user, err := h.auth.CreateStaff(c.Request().Context(), authsvc.CreateStaffParams{
		Email:       req.Email,
		Password:    req.Password,
		Role:        models.Role(req.Role),
		FinancierID: req.FinancierID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// DeactivateUser soft-deactivates an account.
func (h *Handlers) DeactivateUser(c echo.Context) error {
	return h.setUserActive(c, false)
}

// ActivateUser reactivates an account.
func (h *Handlers) ActivateUser(c echo.Context) error {
	return h.setUserActive(c, true)
}

func (h *Handlers) setUserActive(c echo.Context, active bool) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.auth.SetActive(ctx, id, active); err != nil {
		return err
	}
	user, err := h.auth.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}
