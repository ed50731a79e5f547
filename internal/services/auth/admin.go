// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/email"
)

// EnsureAdmin ensures at least one admin exists, creating one if needed.
// An existing account with the given email is promoted instead.
func (s *Service) EnsureAdmin(ctx context.Context, emailAddr, password string) error {
	count, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}

	if count > 0 {
		return nil // Admin already exists
	}

	emailAddr = models.NormalizeEmail(emailAddr)
	if _, err := mail.ParseAddress(emailAddr); err != nil {
		return ErrInvalidEmail
	}

	return s.repo.InTx(ctx, func(tx *repository.Repository) error {
		existing, err := tx.GetUserByEmail(ctx, emailAddr)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to get user: %w", err)
		}

		if existing != nil {
			if err := tx.SetUserRole(ctx, existing.ID, models.RoleAdmin); err != nil {
				return fmt.Errorf("failed to set admin: %w", err)
			}
			if err := tx.SetUserVerified(ctx, existing.ID, true); err != nil {
				return fmt.Errorf("failed to verify admin: %w", err)
			}
			if err := tx.SetUserActive(ctx, existing.ID, true); err != nil {
				return fmt.Errorf("failed to activate admin: %w", err)
			}
			slog.Info("admin_promoted", "user_id", existing.ID, "email", emailAddr)
			return nil
		}

		passwordHash, err := s.hasher.Hash(password)
		if err != nil {
			return err
		}
		admin := &models.User{
			Email:        emailAddr,
			PasswordHash: passwordHash,
			Role:         models.RoleAdmin,
			IsActive:     true,
			IsVerified:   true,
		}
		if err := tx.CreateUser(ctx, admin); err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		slog.Info("admin_created", "user_id", admin.ID, "email", emailAddr)
		return nil
	})
}

// CreateStaffParams holds the parameters for an account created by an admin.
type CreateStaffParams struct {
	Email       string
	Password    string
	Role        models.Role
	FinancierID *int64
	FirstName   string
	LastName    string
	Phone       string
}

// CreateStaff creates a verified ADMIN or FINANCIER_STAFF account. Staff
// accounts must be linked to an active financier.
func (s *Service) CreateStaff(ctx context.Context, params CreateStaffParams) (*models.User, error) {
	emailAddr := models.NormalizeEmail(params.Email)
	if _, err := mail.ParseAddress(emailAddr); err != nil {
		return nil, ErrInvalidEmail
	}

	switch params.Role {
	case models.RoleAdmin:
		params.FinancierID = nil
	case models.RoleFinancierStaff:
		if params.FinancierID == nil {
			return nil, ErrFinancierRequired
		}
	default:
		return nil, ErrInvalidRole
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        emailAddr,
		PasswordHash: passwordHash,
		Role:         params.Role,
		IsActive:     true,
		IsVerified:   true,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Phone:        params.Phone,
		FinancierID:  params.FinancierID,
	}

	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		if user.FinancierID != nil {
			financier, err := tx.GetFinancier(ctx, *user.FinancierID)
			if errors.Is(err, repository.ErrNotFound) {
				return ErrFinancierRequired
			}
			if err != nil {
				return err
			}
			if !financier.IsActive {
				return ErrFinancierRequired
			}
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateIdentity
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("staff_created", "user_id", user.ID, "email", user.Email, "role", user.Role)
	email.Dispatch(ctx, s.sender, user.Email, email.KindWelcome, email.Data{FirstName: user.FirstName})
	return user, nil
}

// GetUser returns an account by ID.
func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// ListUsers returns all accounts, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListUsers(ctx)
}

// SetActive activates or soft-deactivates an account. Accounts are never
// deleted.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool) error {
	if err := s.repo.SetUserActive(ctx, userID, active); err != nil {
		return err
	}
	slog.Info("user_active_changed", "user_id", userID, "active", active)
	return nil
}
