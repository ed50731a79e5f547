// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/kantama/portal/internal/models"
)

// CreateAttachment records attachment metadata.
func (r *Repository) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	ts := now()
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO attachments (application_id, original_filename, storage_key, content_type, size_bytes, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ApplicationID, a.OriginalFilename, a.StorageKey, a.ContentType, a.SizeBytes, a.UploadedBy, ts)
	if err != nil {
		return wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	a.CreatedAt = ts
	return nil
}

// GetAttachment retrieves attachment metadata by ID.
func (r *Repository) GetAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	var a models.Attachment
	if err := r.q.GetContext(ctx, &a, `SELECT * FROM attachments WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &a, nil
}

// ListAttachments returns an application's attachments in upload order.
func (r *Repository) ListAttachments(ctx context.Context, applicationID int64) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	err := r.q.SelectContext(ctx, &attachments,
		`SELECT * FROM attachments WHERE application_id = ? ORDER BY id`, applicationID)
	return attachments, err
}
