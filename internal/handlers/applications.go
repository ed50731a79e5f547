// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/services/applications"
	"github.com/labstack/echo/v4"
)

// ApplicationFields are the editable application fields.
type ApplicationFields struct {
	CompanyName          string `json:"company_name" validate:"max=200"`
	BusinessID           string `json:"business_id" validate:"max=20"`
	ContactPerson        string `json:"contact_person" validate:"max=200"`
	ContactEmail         string `json:"contact_email" validate:"omitempty,email,max=254"`
	ContactPhone         string `json:"contact_phone" validate:"max=40"`
	EquipmentDescription string `json:"equipment_description" validate:"max=2000"`
	EquipmentSupplier    string `json:"equipment_supplier" validate:"max=200"`
	AmountCents          int64  `json:"amount_cents" validate:"gte=0"`
	TermMonths           int    `json:"term_months" validate:"gte=0,lte=240"`
	Notes                string `json:"notes" validate:"max=5000"`
}

func (f ApplicationFields) fields() applications.Fields {
	return applications.Fields{
		CompanyName:          f.CompanyName,
		BusinessID:           f.BusinessID,
		ContactPerson:        f.ContactPerson,
		ContactEmail:         f.ContactEmail,
		ContactPhone:         f.ContactPhone,
		EquipmentDescription: f.EquipmentDescription,
		EquipmentSupplier:    f.EquipmentSupplier,
		AmountCents:          f.AmountCents,
		TermMonths:           f.TermMonths,
		Notes:                f.Notes,
	}
}

// CreateApplicationRequest is the body of POST /applications.
type CreateApplicationRequest struct {
	Type string `json:"application_type" validate:"required,app_type"`
	ApplicationFields
	Submit bool `json:"submit"`
}

// TransitionRequest is the body of POST /applications/:id/transitions.
type TransitionRequest struct {
	Status      string `json:"status" validate:"required,app_status"`
	FinancierID *int64 `json:"financier_id" validate:"omitempty,gt=0"`
	Note        string `json:"note" validate:"max=2000"`
}

// AssignFinancierRequest is the body of PUT /applications/:id/financier.
type AssignFinancierRequest struct {
	FinancierID int64 `json:"financier_id" validate:"required,gt=0"`
}

// ListApplicationsQuery holds the filters of GET /applications.
type ListApplicationsQuery struct {
	Status string `query:"status" validate:"omitempty,app_status"`
	Type   string `query:"type" validate:"omitempty,app_type"`
}

// ListApplications returns the applications visible to the current user.
func (h *Handlers) ListApplications(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var q ListApplicationsQuery
	if err := bind(c, &q); err != nil {
		return err
	}

	apps, err := h.applications.List(c.Request().Context(), user, applications.ListFilter{
		Status: models.Status(q.Status),
		Type:   models.ApplicationType(q.Type),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apps)
}

// CreateApplication stores a new application, optionally submitting it.
func (h *Handlers) CreateApplication(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req CreateApplicationRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	app, err := h.applications.Create(c.Request().Context(), user, applications.CreateParams{
		Type:   models.ApplicationType(req.Type),
		Fields: req.fields(),
		Submit: req.Submit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, app)
}

// GetApplication returns one application.
func (h *Handlers) GetApplication(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	app, err := h.applications.Get(c.Request().Context(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, app)
}

// UpdateApplication replaces the editable fields.
func (h *Handlers) UpdateApplication(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req ApplicationFields
	if err := bind(c, &req); err != nil {
		return err
	}

	app, err := h.applications.Update(c.Request().Context(), user, id, req.fields())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, app)
}

// TransitionApplication moves an application to a new status.
func (h *Handlers) TransitionApplication(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req TransitionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	app, err := h.applications.Transition(c.Request().Context(), user, id, models.Status(req.Status), applications.TransitionOptions{
		FinancierID: req.FinancierID,
		Note:        req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, app)
}

// AssignFinancier links an application to a financier.
func (h *Handlers) AssignFinancier(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req AssignFinancierRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	app, err := h.applications.AssignFinancier(c.Request().Context(), user, id, req.FinancierID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, app)
}

// ApplicationHistory returns the status changes of an application.
func (h *Handlers) ApplicationHistory(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	changes, err := h.applications.History(c.Request().Context(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, changes)
}

// ListAttachments returns the documents of an application.
func (h *Handlers) ListAttachments(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	list, err := h.attachments.ListVisible(c.Request().Context(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// UploadAttachment stores the multipart field "file" for an application.
func (h *Handlers) UploadAttachment(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return err
		}
		return &ValidationError{Fields: []FieldError{{Field: "file", Rule: "required"}}}
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	a, err := h.attachments.Upload(c.Request().Context(), user, id, fh.Filename, contentType, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}
