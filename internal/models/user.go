// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"strings"
	"time"
)

// Role determines what a user may do in the portal.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleCustomer       Role = "CUSTOMER"
	RoleFinancierStaff Role = "FINANCIER_STAFF"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCustomer, RoleFinancierStaff:
		return true
	}
	return false
}

type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         Role       `db:"role" json:"role"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	IsVerified   bool       `db:"is_verified" json:"is_verified"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	CompanyName  string     `db:"company_name" json:"company_name"`
	BusinessID   string     `db:"business_id" json:"business_id"`
	Phone        string     `db:"phone" json:"phone"`
	FinancierID  *int64     `db:"financier_id" json:"financier_id,omitempty"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	// Token is the single outstanding verification or reset token, nil if none.
	Token *Token `db:"-" json:"-"`
}

// IsAdmin returns true if the user has the ADMIN role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeEmail returns the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
