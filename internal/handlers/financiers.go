// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/kantama/portal/internal/services/financiers"
	"github.com/labstack/echo/v4"
)

// CreateFinancierRequest is the body of POST /financiers.
type CreateFinancierRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	BusinessID string `json:"business_id" validate:"max=20"`
	Email      string `json:"email" validate:"omitempty,email,max=254"`
	Phone      string `json:"phone" validate:"max=40"`
}

// ListFinanciers returns the directory, optionally only active partners.
func (h *Handlers) ListFinanciers(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	list, err := h.financiers.List(c.Request().Context(), activeOnly)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// CreateFinancier adds a financier.
func (h *Handlers) CreateFinancier(c echo.Context) error {
	var req CreateFinancierRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	f, err := h.financiers.Create(c.Request().Context(), financiers.CreateParams{
		Name:       req.Name,
		BusinessID: req.BusinessID,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, f)
}

// GetFinancier returns one financier.
func (h *Handlers) GetFinancier(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	f, err := h.financiers.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

// DeactivateFinancier stops new assignments to a financier.
func (h *Handlers) DeactivateFinancier(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	f, err := h.financiers.Deactivate(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

// ActivateFinancier allows assignments to a financier again.
func (h *Handlers) ActivateFinancier(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	f, err := h.financiers.Activate(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}
