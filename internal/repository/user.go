// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"time"

	"codeberg.org/kantama/portal/internal/models"
)

const userColumns = `id, email, password_hash, role, is_active, is_verified,
	first_name, last_name, company_name, business_id, phone, financier_id,
	token_kind, token_hash, token_expires_at, last_login_at, created_at, updated_at`

// userRow maps the flattened token columns onto models.User.
type userRow struct {
	models.User
	TokenKind      *string    `db:"token_kind"`
	TokenHash      *string    `db:"token_hash"`
	TokenExpiresAt *time.Time `db:"token_expires_at"`
}

func (row *userRow) toUser() *models.User {
	user := row.User
	if row.TokenKind != nil && row.TokenHash != nil && row.TokenExpiresAt != nil {
		user.Token = &models.Token{
			Kind:      models.TokenKind(*row.TokenKind),
			Hash:      *row.TokenHash,
			ExpiresAt: *row.TokenExpiresAt,
		}
	}
	return &user
}

func tokenColumns(token *models.Token) (kind, hash, expiresAt any) {
	if token == nil {
		return nil, nil, nil
	}
	return string(token.Kind), token.Hash, token.ExpiresAt.UTC()
}

func (r *Repository) getUser(ctx context.Context, where string, args ...any) (*models.User, error) {
	var row userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	if err := r.q.GetContext(ctx, &row, query, args...); err != nil {
		return nil, wrapError(err)
	}
	return row.toUser(), nil
}

// CreateUser inserts a user. The email is normalized before it is stored.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	ts := now()
	user.Email = models.NormalizeEmail(user.Email)
	kind, hash, expiresAt := tokenColumns(user.Token)

	res, err := r.q.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, is_active, is_verified,
			first_name, last_name, company_name, business_id, phone, financier_id,
			token_kind, token_hash, token_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.Role, user.IsActive, user.IsVerified,
		user.FirstName, user.LastName, user.CompanyName, user.BusinessID, user.Phone, user.FinancierID,
		kind, hash, expiresAt, ts, ts)
	if err != nil {
		return wrapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	user.CreatedAt = ts
	user.UpdatedAt = ts
	return nil
}

// GetUserByID retrieves a user by their ID
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

// GetUserByEmail retrieves a user by email, ignoring case
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `email = ?`, models.NormalizeEmail(email))
}

// GetUserByToken retrieves the user holding a token of the given kind and hash.
func (r *Repository) GetUserByToken(ctx context.Context, kind models.TokenKind, tokenHash string) (*models.User, error) {
	return r.getUser(ctx, `token_kind = ? AND token_hash = ?`, string(kind), tokenHash)
}

// ListUsers returns all users ordered by creation date (newest first)
func (r *Repository) ListUsers(ctx context.Context) ([]*models.User, error) {
	var rows []userRow
	if err := r.q.SelectContext(ctx, &rows,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, err
	}
	users := make([]*models.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toUser()
	}
	return users, nil
}

// CountAdmins returns the number of admin users
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.q.GetContext(ctx, &count, `SELECT count(*) FROM users WHERE role = ?`, models.RoleAdmin)
	return count, err
}

// SetUserToken replaces the user's outstanding token. A nil token clears it.
func (r *Repository) SetUserToken(ctx context.Context, userID int64, token *models.Token) error {
	kind, hash, expiresAt := tokenColumns(token)
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE users SET token_kind = ?, token_hash = ?, token_expires_at = ?, updated_at = ? WHERE id = ?`,
		kind, hash, expiresAt, now(), userID))
}

// ConsumeVerificationToken marks the user verified and clears the token,
// provided the user still holds the token with the given hash.
func (r *Repository) ConsumeVerificationToken(ctx context.Context, userID int64, tokenHash string) error {
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE users SET is_verified = 1,
			token_kind = NULL, token_hash = NULL, token_expires_at = NULL, updated_at = ?
		WHERE id = ? AND token_kind = ? AND token_hash = ?`,
		now(), userID, models.TokenVerifyEmail, tokenHash))
}

// ConsumeResetToken replaces the password hash and clears the token,
// provided the user still holds the token with the given hash.
func (r *Repository) ConsumeResetToken(ctx context.Context, userID int64, tokenHash, passwordHash string) error {
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, is_verified = 1,
			token_kind = NULL, token_hash = NULL, token_expires_at = NULL, updated_at = ?
		WHERE id = ? AND token_kind = ? AND token_hash = ?`,
		passwordHash, now(), userID, models.TokenResetPassword, tokenHash))
}

// SetUserRole changes a user's role
func (r *Repository) SetUserRole(ctx context.Context, userID int64, role models.Role) error {
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, role, now(), userID))
}

// SetUserVerified sets the verified flag without touching the token.
func (r *Repository) SetUserVerified(ctx context.Context, userID int64, verified bool) error {
	return expectOne(r.q.ExecContext(ctx,
		`UPDATE users SET is_verified = ?, updated_at = ? WHERE id = ?`, verified, now(), userID))
}

// SetUserActive activates or soft-deactivates a user
func (r *Repository) SetUserActive(ctx context.Context, userID int64, active bool) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active, now(), userID)
	if err := expectOne(res, err); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// TouchLastLogin records a successful login
func (r *Repository) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), userID)
	return err
}

// PurgeExpiredTokens clears tokens that expired before the given instant
// and returns how many were removed.
func (r *Repository) PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET token_kind = NULL, token_hash = NULL, token_expires_at = NULL
		WHERE token_expires_at IS NOT NULL AND token_expires_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
