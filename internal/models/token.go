// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// TokenKind tags what an opaque user token may be used for.
type TokenKind string

const (
	TokenVerifyEmail   TokenKind = "VERIFY_EMAIL"
	TokenResetPassword TokenKind = "RESET_PASSWORD"
)

// Token is a single-use, time-bounded opaque token held by a user.
// Only the SHA256 hash of the value handed out is kept.
type Token struct {
	Kind      TokenKind `json:"kind"`
	Hash      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the token is no longer valid at now.
// A token is invalid from the expiry instant onward.
func (t Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
