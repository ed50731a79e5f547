// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements account registration, login, email verification
// and password reset on top of the credential store and token issuer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"

	"codeberg.org/kantama/portal/internal/config"
	"codeberg.org/kantama/portal/internal/metrics"
	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/email"
	"codeberg.org/kantama/portal/internal/services/token"
)

var (
	ErrDuplicateIdentity  = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidSession     = errors.New("invalid session")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidRole        = errors.New("role cannot be assigned")
	ErrFinancierRequired  = errors.New("financier staff must belong to an active financier")
)

type Service struct {
	repo           *repository.Repository
	config         *config.AuthConfig
	hasher         *Hasher
	tokens         *token.Issuer
	sender         email.Sender
	passwordPolicy *PasswordPolicy
}

func NewService(repo *repository.Repository, tokens *token.Issuer, sender email.Sender, cfg *config.AuthConfig) *Service {
	return &Service{
		repo:           repo,
		config:         cfg,
		hasher:         NewHasher(cfg.BcryptCost),
		tokens:         tokens,
		sender:         sender,
		passwordPolicy: NewPasswordPolicy(cfg.PasswordMinLength),
	}
}

// PasswordPolicy returns the policy handlers apply to chosen passwords.
func (s *Service) PasswordPolicy() *PasswordPolicy {
	return s.passwordPolicy
}

// RegisterParams holds the parameters for customer registration
type RegisterParams struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	CompanyName string
	BusinessID  string
	Phone       string
}

// Register creates a customer account and returns it with a session token.
// Unless auto-verify is on, the account starts unverified and a verification
// link is mailed.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, string, error) {
	emailAddr := models.NormalizeEmail(params.Email)
	if _, err := mail.ParseAddress(emailAddr); err != nil {
		return nil, "", ErrInvalidEmail
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		Email:        emailAddr,
		PasswordHash: passwordHash,
		Role:         models.RoleCustomer,
		IsActive:     true,
		IsVerified:   s.config.AutoVerify,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		CompanyName:  params.CompanyName,
		BusinessID:   params.BusinessID,
		Phone:        params.Phone,
	}

	var plaintext string
	if !s.config.AutoVerify {
		plaintext, user.Token, err = s.tokens.Generate(models.TokenVerifyEmail)
		if err != nil {
			return nil, "", err
		}
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", ErrDuplicateIdentity
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	session, _, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}

	slog.Info("register_success", "user_id", user.ID, "email", user.Email, "auto_verified", s.config.AutoVerify)
	metrics.Registrations.WithLabelValues(strconv.FormatBool(s.config.AutoVerify)).Inc()

	if s.config.AutoVerify {
		email.Dispatch(ctx, s.sender, user.Email, email.KindWelcome, email.Data{FirstName: user.FirstName})
	} else {
		email.Dispatch(ctx, s.sender, user.Email, email.KindVerifyEmail, email.Data{FirstName: user.FirstName, Token: plaintext})
	}

	return user, session, nil
}

// Authenticate checks the credentials and returns the user with a fresh
// session token. Unknown email and wrong password fail identically.
func (s *Service) Authenticate(ctx context.Context, emailAddr, password string) (*models.User, string, error) {
	emailAddr = models.NormalizeEmail(emailAddr)

	user, err := s.repo.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			s.hasher.VerifyDummy(password)
			slog.Warn("login_failed", "email", emailAddr, "reason", "user_not_found")
			metrics.Logins.WithLabelValues("invalid_credentials").Inc()
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		slog.Warn("login_failed", "email", emailAddr, "reason", "invalid_password")
		metrics.Logins.WithLabelValues("invalid_credentials").Inc()
		return nil, "", ErrInvalidCredentials
	}

	if !user.IsActive {
		slog.Warn("login_failed", "email", emailAddr, "reason", "inactive")
		metrics.Logins.WithLabelValues("inactive").Inc()
		return nil, "", ErrAccountInactive
	}

	now := s.tokens.Now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, "", fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now

	session, _, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}

	slog.Info("login_success", "user_id", user.ID, "email", emailAddr)
	metrics.Logins.WithLabelValues("success").Inc()
	return user, session, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, plaintext string) error {
	hash := token.Hash(plaintext)

	user, err := s.userByToken(ctx, models.TokenVerifyEmail, hash)
	if err != nil {
		return err
	}

	if err := s.repo.ConsumeVerificationToken(ctx, user.ID, hash); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// consumed concurrently
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to verify email: %w", err)
	}

	slog.Info("email_verified", "user_id", user.ID)
	return nil
}

// ResendVerification replaces the outstanding verification token of an
// unverified user and mails the new link.
func (s *Service) ResendVerification(ctx context.Context, userID int64) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	plaintext, tok, err := s.tokens.Generate(models.TokenVerifyEmail)
	if err != nil {
		return err
	}
	if err := s.repo.SetUserToken(ctx, user.ID, tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	email.Dispatch(ctx, s.sender, user.Email, email.KindVerifyEmail, email.Data{FirstName: user.FirstName, Token: plaintext})
	return nil
}

// RequestPasswordReset mails a reset link to an active account. The outcome
// is the same whether or not the address is registered; only infrastructure
// failures are returned.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	user, err := s.repo.GetUserByEmail(ctx, models.NormalizeEmail(emailAddr))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to get user: %w", err)
	}

	plaintext, tok, genErr := s.tokens.Generate(models.TokenResetPassword)
	if genErr != nil {
		return genErr
	}

	if user == nil || !user.IsActive {
		slog.Info("password_reset_ignored", "email", models.NormalizeEmail(emailAddr))
		return nil
	}

	if err := s.repo.SetUserToken(ctx, user.ID, tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	slog.Info("password_reset_requested", "user_id", user.ID)
	email.Dispatch(ctx, s.sender, user.Email, email.KindResetPassword, email.Data{FirstName: user.FirstName, Token: plaintext})
	return nil
}

// ResetPassword consumes a reset token and replaces the password. Receiving
// the link proves ownership of the address, so the account is also verified.
func (s *Service) ResetPassword(ctx context.Context, plaintext, newPassword string) error {
	hash := token.Hash(plaintext)

	user, err := s.userByToken(ctx, models.TokenResetPassword, hash)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return ErrAccountInactive
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.ConsumeResetToken(ctx, user.ID, hash, passwordHash); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	slog.Info("password_reset", "user_id", user.ID)
	return nil
}

// CurrentUser resolves a session token to its active account.
func (s *Service) CurrentUser(ctx context.Context, session string) (*models.User, error) {
	claims, err := s.tokens.Validate(session)
	if err != nil {
		return nil, ErrInvalidSession
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidSession
	}

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return user, nil
}

func (s *Service) userByToken(ctx context.Context, kind models.TokenKind, hash string) (*models.User, error) {
	user, err := s.repo.GetUserByToken(ctx, kind, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if user.Token == nil {
		return nil, ErrInvalidToken
	}
	if user.Token.ExpiredAt(s.tokens.Now()) {
		return nil, ErrTokenExpired
	}
	return user, nil
}
