// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"

	"codeberg.org/kantama/portal/internal/models"
)

// ApplicationFilter narrows ListApplications. Zero values match everything.
type ApplicationFilter struct {
	CustomerID  *int64
	FinancierID *int64
	Status      models.Status
	Type        models.ApplicationType
}

// CreateApplication inserts an application with its current status.
func (r *Repository) CreateApplication(ctx context.Context, app *models.Application) error {
	ts := now()
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO applications (reference_number, application_type, status, customer_id, financier_id,
			company_name, business_id, contact_person, contact_email, contact_phone,
			equipment_description, equipment_supplier, amount_cents, term_months, notes,
			created_at, updated_at, submitted_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ReferenceNumber, app.Type, app.Status, app.CustomerID, app.FinancierID,
		app.CompanyName, app.BusinessID, app.ContactPerson, app.ContactEmail, app.ContactPhone,
		app.EquipmentDescription, app.EquipmentSupplier, app.AmountCents, app.TermMonths, app.Notes,
		ts, ts, app.SubmittedAt, app.ClosedAt)
	if err != nil {
		return wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	app.ID = id
	app.CreatedAt = ts
	app.UpdatedAt = ts
	return nil
}

// GetApplication retrieves an application by ID.
func (r *Repository) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	var app models.Application
	if err := r.q.GetContext(ctx, &app, `SELECT * FROM applications WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &app, nil
}

// ListApplications returns matching applications, newest first.
func (r *Repository) ListApplications(ctx context.Context, filter ApplicationFilter) ([]models.Application, error) {
	var (
		where []string
		args  []any
	)
	if filter.CustomerID != nil {
		where = append(where, "customer_id = ?")
		args = append(args, *filter.CustomerID)
	}
	if filter.FinancierID != nil {
		where = append(where, "financier_id = ?")
		args = append(args, *filter.FinancierID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		where = append(where, "application_type = ?")
		args = append(args, filter.Type)
	}

	query := `SELECT * FROM applications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	apps := []models.Application{}
	if err := r.q.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, err
	}
	return apps, nil
}

// UpdateApplicationDetails writes the editable snapshot fields, provided the
// application is still in the expected status.
func (r *Repository) UpdateApplicationDetails(ctx context.Context, app *models.Application) error {
	ts := now()
	err := expectOne(r.q.ExecContext(ctx,
		`UPDATE applications SET company_name = ?, business_id = ?, contact_person = ?,
			contact_email = ?, contact_phone = ?, equipment_description = ?, equipment_supplier = ?,
			amount_cents = ?, term_months = ?, notes = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		app.CompanyName, app.BusinessID, app.ContactPerson,
		app.ContactEmail, app.ContactPhone, app.EquipmentDescription, app.EquipmentSupplier,
		app.AmountCents, app.TermMonths, app.Notes, ts,
		app.ID, app.Status))
	if err == nil {
		app.UpdatedAt = ts
	}
	return err
}

// UpdateApplicationState writes status, reference number, financier and
// lifecycle timestamps. The update only applies while the stored status still
// equals from; otherwise ErrConflict is returned.
func (r *Repository) UpdateApplicationState(ctx context.Context, app *models.Application, from models.Status) error {
	ts := now()
	err := expectOne(r.q.ExecContext(ctx,
		`UPDATE applications SET status = ?, reference_number = ?, financier_id = ?,
			submitted_at = ?, closed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		app.Status, app.ReferenceNumber, app.FinancierID,
		app.SubmittedAt, app.ClosedAt, ts,
		app.ID, from))
	if err == nil {
		app.UpdatedAt = ts
	}
	return err
}

// AddStatusChange appends an entry to the application's status history.
func (r *Repository) AddStatusChange(ctx context.Context, change *models.StatusChange) error {
	ts := now()
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO application_status_changes (application_id, from_status, to_status, actor_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		change.ApplicationID, change.FromStatus, change.ToStatus, change.ActorID, change.Note, ts)
	if err != nil {
		return wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	change.ID = id
	change.CreatedAt = ts
	return nil
}

// ListStatusChanges returns the status history of an application, oldest first.
func (r *Repository) ListStatusChanges(ctx context.Context, applicationID int64) ([]models.StatusChange, error) {
	changes := []models.StatusChange{}
	err := r.q.SelectContext(ctx, &changes,
		`SELECT * FROM application_status_changes WHERE application_id = ? ORDER BY id`,
		applicationID)
	return changes, err
}

// NextReferenceSequence atomically increments and returns the counter for
// the given type code and year. The first value of a new year is 1.
func (r *Repository) NextReferenceSequence(ctx context.Context, typeCode string, year int) (int64, error) {
	var seq int64
	err := r.q.GetContext(ctx, &seq,
		`INSERT INTO reference_sequences (type_code, year, last_value) VALUES (?, ?, 1)
		ON CONFLICT (type_code, year) DO UPDATE SET last_value = last_value + 1
		RETURNING last_value`,
		typeCode, year)
	return seq, err
}
