// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package attachments records documents uploaded for applications.
package attachments

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/applications"
	"codeberg.org/kantama/portal/internal/storage"
)

// FileMeta describes a stored blob.
type FileMeta struct {
	OriginalFilename string
	StorageKey       string
	ContentType      string
	SizeBytes        int64
	UploadedBy       *int64
}

// Service manages attachment metadata and their blobs.
type Service struct {
	repo     *repository.Repository
	apps     *applications.Service
	blobs    *storage.Local
	maxBytes int64
}

// NewService creates an attachment service. maxBytes of zero disables the
// size limit.
func NewService(repo *repository.Repository, apps *applications.Service, blobs *storage.Local, maxBytes int64) *Service {
	return &Service{repo: repo, apps: apps, blobs: blobs, maxBytes: maxBytes}
}

// Attach records metadata for an already stored blob. Closed applications
// accept no further documents.
func (s *Service) Attach(ctx context.Context, applicationID int64, meta FileMeta) (*models.Attachment, error) {
	a := &models.Attachment{
		ApplicationID:    applicationID,
		OriginalFilename: meta.OriginalFilename,
		StorageKey:       meta.StorageKey,
		ContentType:      meta.ContentType,
		SizeBytes:        meta.SizeBytes,
		UploadedBy:       meta.UploadedBy,
	}

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		app, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.Locked() {
			return applications.ErrApplicationLocked
		}
		if err := tx.CreateAttachment(ctx, a); err != nil {
			return fmt.Errorf("failed to record attachment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns an application's attachments in upload order.
func (s *Service) List(ctx context.Context, applicationID int64) ([]models.Attachment, error) {
	return s.repo.ListAttachments(ctx, applicationID)
}

// Store writes a blob and returns its key and size.
func (s *Service) Store(_ context.Context, filename string, r io.Reader) (string, int64, error) {
	return s.blobs.Save(filename, r, s.maxBytes)
}

// Upload stores a document for an application visible to actor and records
// it. The blob is removed again when the metadata cannot be recorded.
func (s *Service) Upload(ctx context.Context, actor *models.User, applicationID int64, filename, contentType string, r io.Reader) (*models.Attachment, error) {
	app, err := s.apps.Get(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Locked() {
		return nil, applications.ErrApplicationLocked
	}

	key, size, err := s.Store(ctx, filename, r)
	if err != nil {
		return nil, err
	}

	a, err := s.Attach(ctx, applicationID, FileMeta{
		OriginalFilename: filename,
		StorageKey:       key,
		ContentType:      contentType,
		SizeBytes:        size,
		UploadedBy:       &actor.ID,
	})
	if err != nil {
		if delErr := s.blobs.Delete(key); delErr != nil {
			slog.WarnContext(ctx, "attachment_cleanup_failed", "storage_key", key, "error", delErr)
		}
		return nil, err
	}

	slog.Info("attachment_uploaded", "application_id", applicationID, "attachment_id", a.ID, "size", size, "actor_id", actor.ID)
	return a, nil
}

// ListVisible returns the attachments of an application visible to actor.
func (s *Service) ListVisible(ctx context.Context, actor *models.User, applicationID int64) ([]models.Attachment, error) {
	if _, err := s.apps.Get(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	return s.List(ctx, applicationID)
}
