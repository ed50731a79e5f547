// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codeberg.org/kantama/portal/internal/database"
	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/email"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates an active, verified user with password "password".
func NewTestUser(t *testing.T, repo *repository.Repository, emailAddr string, role models.Role) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Email:        emailAddr,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
		IsVerified:   true,
		FirstName:    "Test",
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewTestStaff creates a FINANCIER_STAFF user linked to the given financier.
func NewTestStaff(t *testing.T, repo *repository.Repository, emailAddr string, financierID int64) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Email:        emailAddr,
		PasswordHash: string(hash),
		Role:         models.RoleFinancierStaff,
		IsActive:     true,
		IsVerified:   true,
		FinancierID:  &financierID,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewTestFinancier creates a financier.
func NewTestFinancier(t *testing.T, repo *repository.Repository, name string, active bool) *models.Financier {
	t.Helper()
	f := &models.Financier{Name: name, IsActive: active}
	require.NoError(t, repo.CreateFinancier(context.Background(), f))
	return f
}

// NewTestApplication creates a DRAFT leasing application owned by customerID.
func NewTestApplication(t *testing.T, repo *repository.Repository, customerID int64) *models.Application {
	t.Helper()
	app := &models.Application{
		Type:                 models.TypeLeasing,
		Status:               models.StatusDraft,
		CustomerID:           customerID,
		CompanyName:          "Testi Oy",
		BusinessID:           "1234567-8",
		EquipmentDescription: "Excavator",
		AmountCents:          5_000_000,
		TermMonths:           36,
	}
	require.NoError(t, repo.CreateApplication(context.Background(), app))
	return app
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Clock is a settable clock for tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SentMessage is a notice captured by RecordingSender.
type SentMessage struct {
	To   string
	Kind email.Kind
	Data email.Data
}

// RecordingSender is an email.Sender that records every notice.
// When Err is set, Send records the notice and then fails with it.
type RecordingSender struct {
	mu       sync.Mutex
	Messages []SentMessage
	Err      error
}

// Send implements email.Sender.
func (s *RecordingSender) Send(_ context.Context, to string, kind email.Kind, data email.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, SentMessage{To: to, Kind: kind, Data: data})
	return s.Err
}

// Last returns the most recent notice, or nil if none was sent.
func (s *RecordingSender) Last() *SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Messages) == 0 {
		return nil
	}
	m := s.Messages[len(s.Messages)-1]
	return &m
}

// Count returns the number of notices sent.
func (s *RecordingSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages)
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}
