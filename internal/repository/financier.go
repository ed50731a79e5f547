// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"

	"codeberg.org/kantama/portal/internal/models"
)

// CreateFinancier inserts a financier.
func (r *Repository) CreateFinancier(ctx context.Context, f *models.Financier) error {
	ts := now()
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO financiers (name, business_id, email, phone, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.Name, f.BusinessID, f.Email, f.Phone, f.IsActive, ts, ts)
	if err != nil {
		return wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id
	f.CreatedAt = ts
	f.UpdatedAt = ts
	return nil
}

// GetFinancier retrieves a financier by ID.
func (r *Repository) GetFinancier(ctx context.Context, id int64) (*models.Financier, error) {
	var f models.Financier
	if err := r.q.GetContext(ctx, &f, `SELECT * FROM financiers WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &f, nil
}

// ListFinanciers returns financiers ordered by name.
func (r *Repository) ListFinanciers(ctx context.Context, activeOnly bool) ([]models.Financier, error) {
	query := `SELECT * FROM financiers`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name, id`

	financiers := []models.Financier{}
	if err := r.q.SelectContext(ctx, &financiers, query); err != nil {
		return nil, err
	}
	return financiers, nil
}

// SetFinancierActive activates or deactivates a financier. Applications
// referencing it are left untouched.
func (r *Repository) SetFinancierActive(ctx context.Context, id int64, active bool) error {
	err := expectOne(r.q.ExecContext(ctx,
		`UPDATE financiers SET is_active = ?, updated_at = ? WHERE id = ?`, active, now(), id))
	if errors.Is(err, ErrConflict) {
		return ErrNotFound
	}
	return err
}
