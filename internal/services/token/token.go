// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and validates session tokens and generates the
// opaque single-use tokens sent in verification and reset notices.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/kantama/portal/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// OpaqueLength is the number of random bytes in an opaque token.
	OpaqueLength = 32

	// DefaultSessionTTL is how long a session token is valid.
	DefaultSessionTTL = 12 * time.Hour
	// DefaultVerificationTTL is how long an email verification token is valid.
	DefaultVerificationTTL = 24 * time.Hour
	// DefaultResetTTL is how long a password reset token is valid.
	DefaultResetTTL = 2 * time.Hour
)

var (
	// ErrInvalid is returned for any session token that fails validation.
	ErrInvalid = errors.New("invalid session token")
	// ErrMissingSecret is returned when the issuer has no signing secret.
	ErrMissingSecret = errors.New("signing secret is required")
)

// Claims are the session token claims. Subject carries the user id.
type Claims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the user id from the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalid, c.Subject)
	}
	return id, nil
}

// Config configures an Issuer. Zero TTLs fall back to the defaults.
type Config struct {
	Secret          string
	SessionTTL      time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	Now             func() time.Time
}

// Issuer signs session tokens with HS256 and generates opaque tokens.
type Issuer struct {
	secret          []byte
	sessionTTL      time.Duration
	verificationTTL time.Duration
	resetTTL        time.Duration
	now             func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	i := &Issuer{
		secret:          []byte(cfg.Secret),
		sessionTTL:      cfg.SessionTTL,
		verificationTTL: cfg.VerificationTTL,
		resetTTL:        cfg.ResetTTL,
		now:             cfg.Now,
	}
	if i.sessionTTL <= 0 {
		i.sessionTTL = DefaultSessionTTL
	}
	if i.verificationTTL <= 0 {
		i.verificationTTL = DefaultVerificationTTL
	}
	if i.resetTTL <= 0 {
		i.resetTTL = DefaultResetTTL
	}
	if i.now == nil {
		i.now = time.Now
	}
	return i, nil
}

// Now returns the issuer's current time.
func (i *Issuer) Now() time.Time {
	return i.now()
}

// SessionTTL returns the lifetime of session tokens.
func (i *Issuer) SessionTTL() time.Duration {
	return i.sessionTTL
}

// Issue signs a session token for user.
func (i *Issuer) Issue(user *models.User) (string, *Claims, error) {
	now := i.now()
	// exp is encoded in whole seconds; round up so the token lives at least sessionTTL
	exp := now.Add(i.sessionTTL)
	if whole := exp.Truncate(time.Second); !whole.Equal(exp) {
		exp = whole.Add(time.Second)
	}
	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// Validate parses raw and checks signature, algorithm, expiry and subject.
// Every failure wraps ErrInvalid.
func (i *Issuer) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// TTL returns the lifetime for an opaque token of the given kind.
func (i *Issuer) TTL(kind models.TokenKind) time.Duration {
	if kind == models.TokenResetPassword {
		return i.resetTTL
	}
	return i.verificationTTL
}

// Generate creates an opaque token of the given kind. The plaintext goes
// into the notice; only the returned Token (hash and expiry) is stored.
func (i *Issuer) Generate(kind models.TokenKind) (string, *models.Token, error) {
	buf := make([]byte, OpaqueLength)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	plaintext := hex.EncodeToString(buf)
	return plaintext, &models.Token{
		Kind:      kind,
		Hash:      Hash(plaintext),
		ExpiresAt: i.now().Add(i.TTL(kind)).UTC(),
	}, nil
}

// Hash computes the SHA256 hash of an opaque token.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
