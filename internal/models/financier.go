// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Financier is a funding partner applications can be assigned to.
type Financier struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	BusinessID string    `db:"business_id" json:"business_id"`
	Email      string    `db:"email" json:"email"`
	Phone      string    `db:"phone" json:"phone"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Attachment is the metadata of a document uploaded for an application.
type Attachment struct { //nolint:govet // fieldalignment: readability over optimization
	ID               int64     `db:"id" json:"id"`
	ApplicationID    int64     `db:"application_id" json:"application_id"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	StorageKey       string    `db:"storage_key" json:"-"`
	ContentType      string    `db:"content_type" json:"content_type"`
	SizeBytes        int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy       *int64    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
