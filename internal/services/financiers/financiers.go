// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package financiers manages the directory of financing partners.
package financiers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
)

var (
	ErrNameRequired  = errors.New("financier name is required")
	ErrDuplicateName = errors.New("financier already exists")
)

type Service struct {
	repo *repository.Repository
}

func NewService(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

// CreateParams holds the parameters for a new financier.
type CreateParams struct {
	Name       string
	BusinessID string
	Email      string
	Phone      string
}

// List returns financiers ordered by name.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]models.Financier, error) {
	return s.repo.ListFinanciers(ctx, activeOnly)
}

// Get returns a financier by ID.
func (s *Service) Get(ctx context.Context, id int64) (*models.Financier, error) {
	return s.repo.GetFinancier(ctx, id)
}

// Create adds an active financier.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Financier, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	f := &models.Financier{
		Name:       name,
		BusinessID: strings.TrimSpace(params.BusinessID),
		Email:      models.NormalizeEmail(params.Email),
		Phone:      strings.TrimSpace(params.Phone),
		IsActive:   true,
	}
	if err := s.repo.CreateFinancier(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create financier: %w", err)
	}

	slog.Info("financier_created", "financier_id", f.ID, "name", f.Name)
	return f, nil
}

// Deactivate hides a financier from assignment. Applications already linked
// to it keep their link.
func (s *Service) Deactivate(ctx context.Context, id int64) (*models.Financier, error) {
	return s.setActive(ctx, id, false)
}

// Activate makes a financier assignable again.
func (s *Service) Activate(ctx context.Context, id int64) (*models.Financier, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (*models.Financier, error) {
	if err := s.repo.SetFinancierActive(ctx, id, active); err != nil {
		return nil, err
	}
	slog.Info("financier_active_changed", "financier_id", id, "active", active)
	return s.repo.GetFinancier(ctx, id)
}
