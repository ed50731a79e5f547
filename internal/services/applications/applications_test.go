// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package applications_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/kantama/portal/internal/database"
	"codeberg.org/kantama/portal/internal/events"
	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/applications"
	"codeberg.org/kantama/portal/internal/services/email"
	"codeberg.org/kantama/portal/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.StatusChanged
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, e events.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fixture struct {
	svc       *applications.Service
	repo      *repository.Repository
	sender    *testutil.RecordingSender
	publisher *recordingPublisher

	admin, customer, otherCustomer, staff, otherStaff *models.User
	financier, inactiveFinancier, otherFinancier      *models.Financier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	return buildFixture(t, repo)
}

func buildFixture(t *testing.T, repo *repository.Repository) *fixture {
	t.Helper()
	f := &fixture{
		repo:      repo,
		sender:    &testutil.RecordingSender{},
		publisher: &recordingPublisher{},
	}
	clock := testutil.FixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	f.svc = applications.NewService(repo, f.sender, f.publisher, clock)

	f.financier = testutil.NewTestFinancier(t, repo, "Bank A", true)
	f.inactiveFinancier = testutil.NewTestFinancier(t, repo, "Closed Bank", false)
	f.otherFinancier = testutil.NewTestFinancier(t, repo, "Bank C", true)

	f.admin = testutil.NewTestUser(t, repo, "admin@kantama.fi", models.RoleAdmin)
	f.customer = testutil.NewTestUser(t, repo, "anna@example.com", models.RoleCustomer)
	f.otherCustomer = testutil.NewTestUser(t, repo, "bert@example.com", models.RoleCustomer)
	f.staff = testutil.NewTestStaff(t, repo, "sari@banka.fi", f.financier.ID)
	f.otherStaff = testutil.NewTestStaff(t, repo, "olli@bankc.fi", f.otherFinancier.ID)
	return f
}

// seed stores an application of the customer directly in status, assigned
// to the fixture's financier.
func (f *fixture) seed(t *testing.T, status models.Status) *models.Application {
	t.Helper()
	app := &models.Application{
		Type:        models.TypeLeasing,
		Status:      status,
		CustomerID:  f.customer.ID,
		FinancierID: &f.financier.ID,
		CompanyName: "Testi Oy",
		AmountCents: 1_000_000,
		TermMonths:  24,
	}
	require.NoError(t, f.repo.CreateApplication(context.Background(), app))
	return app
}

func params(submit bool) applications.CreateParams {
	return applications.CreateParams{
		Type: models.TypeLeasing,
		Fields: applications.Fields{
			CompanyName:          "Testi Oy",
			BusinessID:           "1234567-8",
			EquipmentDescription: "Wheel loader",
			AmountCents:          12_000_000,
			TermMonths:           48,
		},
		Submit: submit,
	}
}

func TestCreate_Draft(t *testing.T) {
	f := newFixture(t)

	app, err := f.svc.Create(context.Background(), f.customer, params(false))

	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, app.Status)
	assert.Nil(t, app.ReferenceNumber)
	assert.Equal(t, f.customer.ID, app.CustomerID)
	assert.Empty(t, f.publisher.events)
}

func TestCreate_SubmitAssignsSequentialReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.customer, params(true))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.otherCustomer, params(true))
	require.NoError(t, err)
	slb := params(true)
	slb.Type = models.TypeSaleLeaseback
	third, err := f.svc.Create(ctx, f.customer, slb)
	require.NoError(t, err)

	assert.Equal(t, models.StatusSubmitted, first.Status)
	assert.Equal(t, "LEA-2025-00001", *first.ReferenceNumber)
	assert.Equal(t, "LEA-2025-00002", *second.ReferenceNumber)
	assert.Equal(t, "SLB-2025-00001", *third.ReferenceNumber)
	assert.NotNil(t, first.SubmittedAt)
	assert.Len(t, f.publisher.events, 3)
	// customers are not notified about their own submissions
	assert.Equal(t, 0, f.sender.Count())
}

func TestCreate_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.staff, params(false))
	assert.ErrorIs(t, err, applications.ErrUnauthorized)

	bad := params(false)
	bad.Type = "RENTAL"
	_, err = f.svc.Create(ctx, f.customer, bad)
	assert.ErrorIs(t, err, applications.ErrInvalidType)

	app, err := f.svc.Create(ctx, f.admin, params(false))
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, app.CustomerID)
}

func TestTransition_OnlyTableEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, from := range models.AllStatuses() {
		for _, to := range models.AllStatuses() {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				app := f.seed(t, from)

				_, err := f.svc.Transition(ctx, f.admin, app.ID, to, applications.TransitionOptions{})

				switch {
				case from.Terminal():
					assert.ErrorIs(t, err, applications.ErrApplicationLocked)
				case models.CanTransition(from, to):
					assert.NoError(t, err)
				default:
					assert.ErrorIs(t, err, applications.ErrIllegalTransition)
				}

				stored, err := f.repo.GetApplication(ctx, app.ID)
				require.NoError(t, err)
				if models.CanTransition(from, to) {
					assert.Equal(t, to, stored.Status)
					assert.Equal(t, to.Terminal(), stored.ClosedAt != nil)
				} else {
					assert.Equal(t, from, stored.Status, "illegal transition leaves state unchanged")
				}
			})
		}
	}
}

func TestTransition_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	type actorCase struct {
		name    string
		actor   *models.User
		allowed map[[2]models.Status]bool
		hidden  bool
	}
	edge := func(from, to models.Status) [2]models.Status { return [2]models.Status{from, to} }

	cases := []actorCase{
		{name: "owner", actor: f.customer, allowed: map[[2]models.Status]bool{
			edge(models.StatusDraft, models.StatusSubmitted):     true,
			edge(models.StatusDraft, models.StatusCancelled):     true,
			edge(models.StatusSubmitted, models.StatusCancelled): true,
		}},
		{name: "assigned staff", actor: f.staff, allowed: map[[2]models.Status]bool{
			edge(models.StatusUnderReview, models.StatusApproved): true,
			edge(models.StatusUnderReview, models.StatusRejected): true,
			edge(models.StatusApproved, models.StatusFunded):      true,
		}},
		{name: "other customer", actor: f.otherCustomer, hidden: true},
		{name: "other financier staff", actor: f.otherStaff, hidden: true},
	}

	for _, tc := range cases {
		for from, targets := range models.Transitions {
			for _, to := range targets {
				t.Run(fmt.Sprintf("%s %s->%s", tc.name, from, to), func(t *testing.T) {
					app := f.seed(t, from)

					_, err := f.svc.Transition(ctx, tc.actor, app.ID, to, applications.TransitionOptions{})

					switch {
					case tc.hidden:
						assert.ErrorIs(t, err, repository.ErrNotFound)
					case tc.allowed[edge(from, to)]:
						assert.NoError(t, err)
					default:
						assert.ErrorIs(t, err, applications.ErrUnauthorized)
					}
				})
			}
		}
	}
}

func TestTransition_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// locked wins over illegal and unauthorized
	funded := f.seed(t, models.StatusFunded)
	_, err := f.svc.Transition(ctx, f.customer, funded.ID, models.StatusDraft, applications.TransitionOptions{})
	assert.ErrorIs(t, err, applications.ErrApplicationLocked)

	// illegal wins over unauthorized
	draft := f.seed(t, models.StatusDraft)
	_, err = f.svc.Transition(ctx, f.staff, draft.ID, models.StatusFunded, applications.TransitionOptions{})
	assert.ErrorIs(t, err, applications.ErrIllegalTransition)
}

func TestTransition_FinancierAssignmentOnReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app, err := f.svc.Create(ctx, f.customer, params(true))
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, f.admin, app.ID, models.StatusUnderReview,
		applications.TransitionOptions{FinancierID: &f.inactiveFinancier.ID})
	assert.ErrorIs(t, err, applications.ErrFinancierUnavailable)

	missing := int64(999)
	_, err = f.svc.Transition(ctx, f.admin, app.ID, models.StatusUnderReview,
		applications.TransitionOptions{FinancierID: &missing})
	assert.ErrorIs(t, err, applications.ErrFinancierUnavailable)

	stored, err := f.repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, stored.Status)
	assert.Nil(t, stored.FinancierID)

	reviewed, err := f.svc.Transition(ctx, f.admin, app.ID, models.StatusUnderReview,
		applications.TransitionOptions{FinancierID: &f.financier.ID, Note: "sent to Bank A"})
	require.NoError(t, err)
	require.NotNil(t, reviewed.FinancierID)
	assert.Equal(t, f.financier.ID, *reviewed.FinancierID)
}

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := f.svc.Create(ctx, f.customer, params(true))
	require.NoError(t, err)
	assert.Equal(t, "LEA-2025-00001", *app.ReferenceNumber)

	_, err = f.svc.Transition(ctx, f.admin, app.ID, models.StatusUnderReview,
		applications.TransitionOptions{FinancierID: &f.financier.ID})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, f.staff, app.ID, models.StatusApproved, applications.TransitionOptions{})
	require.NoError(t, err)

	funded, err := f.svc.Transition(ctx, f.staff, app.ID, models.StatusFunded, applications.TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFunded, funded.Status)
	assert.NotNil(t, funded.ClosedAt)
	assert.Equal(t, "LEA-2025-00001", *funded.ReferenceNumber)

	_, err = f.svc.AssignFinancier(ctx, f.admin, app.ID, f.otherFinancier.ID)
	assert.ErrorIs(t, err, applications.ErrApplicationLocked)

	_, err = f.svc.Update(ctx, f.admin, app.ID, applications.Fields{CompanyName: "Changed"})
	assert.ErrorIs(t, err, applications.ErrApplicationLocked)

	history, err := f.svc.History(ctx, f.customer, app.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, models.StatusDraft, history[0].FromStatus)
	assert.Equal(t, models.StatusFunded, history[3].ToStatus)
	assert.Equal(t, f.staff.ID, *history[3].ActorID)

	assert.Len(t, f.publisher.events, 4)
	// review, approval and funding were done by others
	require.Equal(t, 3, f.sender.Count())
	last := f.sender.Last()
	assert.Equal(t, "anna@example.com", last.To)
	assert.Equal(t, email.KindStatusChanged, last.Kind)
	assert.Equal(t, models.StatusFunded, last.Data.Status)
	assert.Equal(t, "LEA-2025-00001", last.Data.Reference)
}

func TestTransition_NotificationFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sender.Err = email.ErrDelivery
	app := f.seed(t, models.StatusSubmitted)

	_, err := f.svc.Transition(ctx, f.admin, app.ID, models.StatusUnderReview, applications.TransitionOptions{})
	require.NoError(t, err)

	stored, err := f.repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, stored.Status)
}

func TestCancelledReferenceIsNotReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.customer, params(true))
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, f.customer, first.ID, models.StatusCancelled, applications.TransitionOptions{})
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, f.customer, params(true))
	require.NoError(t, err)

	assert.Equal(t, "LEA-2025-00002", *second.ReferenceNumber)
}

func TestAssignFinancier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.seed(t, models.StatusSubmitted)

	_, err := f.svc.AssignFinancier(ctx, f.customer, app.ID, f.otherFinancier.ID)
	assert.ErrorIs(t, err, applications.ErrUnauthorized)

	_, err = f.svc.AssignFinancier(ctx, f.admin, app.ID, f.inactiveFinancier.ID)
	assert.ErrorIs(t, err, applications.ErrFinancierUnavailable)

	_, err = f.svc.AssignFinancier(ctx, f.admin, app.ID, 999)
	assert.ErrorIs(t, err, applications.ErrFinancierUnavailable)

	_, err = f.svc.AssignFinancier(ctx, f.admin, 999, f.financier.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	updated, err := f.svc.AssignFinancier(ctx, f.admin, app.ID, f.otherFinancier.ID)
	require.NoError(t, err)
	assert.Equal(t, f.otherFinancier.ID, *updated.FinancierID)
	assert.Equal(t, models.StatusSubmitted, updated.Status)

	again, err := f.svc.AssignFinancier(ctx, f.admin, app.ID, f.otherFinancier.ID)
	require.NoError(t, err)
	assert.Equal(t, f.otherFinancier.ID, *again.FinancierID)
}

func TestAssignFinancier_SameFinancierAfterDeactivationIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.seed(t, models.StatusUnderReview)
	require.NoError(t, f.repo.SetFinancierActive(ctx, f.financier.ID, false))

	got, err := f.svc.AssignFinancier(ctx, f.admin, app.ID, f.financier.ID)

	require.NoError(t, err)
	assert.Equal(t, f.financier.ID, *got.FinancierID)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app, err := f.svc.Create(ctx, f.customer, params(false))
	require.NoError(t, err)

	fields := params(false).Fields
	fields.EquipmentDescription = "Excavator"
	updated, err := f.svc.Update(ctx, f.customer, app.ID, fields)
	require.NoError(t, err)
	assert.Equal(t, "Excavator", updated.EquipmentDescription)

	_, err = f.svc.Update(ctx, f.otherCustomer, app.ID, fields)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.Transition(ctx, f.customer, app.ID, models.StatusSubmitted, applications.TransitionOptions{})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.customer, app.ID, fields)
	assert.ErrorIs(t, err, applications.ErrUnauthorized)

	fields.Notes = "checked by admin"
	updated, err = f.svc.Update(ctx, f.admin, app.ID, fields)
	require.NoError(t, err)
	assert.Equal(t, "checked by admin", updated.Notes)
	assert.Equal(t, models.StatusSubmitted, updated.Status)
}

func TestGetAndListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assigned := f.seed(t, models.StatusUnderReview)
	unassigned, err := f.svc.Create(ctx, f.customer, params(true))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.otherCustomer, params(false))
	require.NoError(t, err)

	all, err := f.svc.List(ctx, f.admin, applications.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	own, err := f.svc.List(ctx, f.customer, applications.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, own, 2)

	submitted, err := f.svc.List(ctx, f.customer, applications.ListFilter{Status: models.StatusSubmitted})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, unassigned.ID, submitted[0].ID)

	forStaff, err := f.svc.List(ctx, f.staff, applications.ListFilter{})
	require.NoError(t, err)
	require.Len(t, forStaff, 1)
	assert.Equal(t, assigned.ID, forStaff[0].ID)

	none, err := f.svc.List(ctx, f.otherStaff, applications.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.Get(ctx, f.staff, unassigned.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.svc.Get(ctx, f.otherCustomer, assigned.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	got, err := f.svc.Get(ctx, f.staff, assigned.ID)
	require.NoError(t, err)
	assert.Equal(t, assigned.ID, got.ID)
}

func TestTransition_ConcurrentExclusiveTransitions(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "apps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	f := buildFixture(t, repository.New(db))
	ctx := context.Background()

	for round := range 10 {
		app := f.seed(t, models.StatusSubmitted)
		var wg sync.WaitGroup
		errs := make([]error, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = f.svc.Transition(ctx, f.customer, app.ID, models.StatusCancelled, applications.TransitionOptions{})
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = f.svc.Transition(ctx, f.admin, app.ID, models.StatusUnderReview, applications.TransitionOptions{})
		}()
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			}
		}
		assert.Equal(t, 1, succeeded, "round %d: %v", round, errs)

		history, err := f.repo.ListStatusChanges(ctx, app.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	}
}
