// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package applications drives financing applications through their
// lifecycle: creation, submission with a reference number, review by a
// financier and a terminal outcome.
package applications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/kantama/portal/internal/events"
	"codeberg.org/kantama/portal/internal/metrics"
	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/email"
	"codeberg.org/kantama/portal/internal/services/refnum"
)

var (
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrUnauthorized         = errors.New("not permitted")
	ErrApplicationLocked    = errors.New("application is closed")
	ErrFinancierUnavailable = errors.New("financier is not available")
	ErrInvalidType          = errors.New("unknown application type")
)

// Service manages applications. Every mutation runs in one write
// transaction; notices and events follow the commit.
type Service struct {
	repo      *repository.Repository
	sender    email.Sender
	publisher events.Publisher
	now       func() time.Time
}

// NewService creates an application service. A nil clock uses time.Now.
func NewService(repo *repository.Repository, sender email.Sender, publisher events.Publisher, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, sender: sender, publisher: publisher, now: now}
}

// Fields are the editable parts of an application.
type Fields struct {
	CompanyName          string
	BusinessID           string
	ContactPerson        string
	ContactEmail         string
	ContactPhone         string
	EquipmentDescription string
	EquipmentSupplier    string
	AmountCents          int64
	TermMonths           int
	Notes                string
}

func (f Fields) apply(app *models.Application) {
	app.CompanyName = f.CompanyName
	app.BusinessID = f.BusinessID
	app.ContactPerson = f.ContactPerson
	app.ContactEmail = f.ContactEmail
	app.ContactPhone = f.ContactPhone
	app.EquipmentDescription = f.EquipmentDescription
	app.EquipmentSupplier = f.EquipmentSupplier
	app.AmountCents = f.AmountCents
	app.TermMonths = f.TermMonths
	app.Notes = f.Notes
}

// CreateParams holds the parameters for a new application.
type CreateParams struct {
	Type models.ApplicationType
	Fields
	// Submit moves the new application straight to SUBMITTED.
	Submit bool
}

// TransitionOptions carry optional side inputs of a transition.
type TransitionOptions struct {
	// FinancierID assigns a financier when entering UNDER_REVIEW.
	FinancierID *int64
	Note        string
}

// ListFilter narrows List beyond the actor's visibility.
type ListFilter struct {
	Status models.Status
	Type   models.ApplicationType
}

// transitionResult is what a committed transition hands to the
// post-commit effects.
type transitionResult struct {
	app   models.Application
	from  models.Status
	actor *models.User
}

// Create stores a new application owned by actor, optionally submitting it
// in the same transaction.
func (s *Service) Create(ctx context.Context, actor *models.User, params CreateParams) (*models.Application, error) {
	if actor == nil || (actor.Role != models.RoleCustomer && actor.Role != models.RoleAdmin) {
		return nil, ErrUnauthorized
	}
	if !params.Type.Valid() {
		return nil, ErrInvalidType
	}

	app := &models.Application{
		Type:       params.Type,
		Status:     models.StatusDraft,
		CustomerID: actor.ID,
	}
	params.Fields.apply(app)

	var result *transitionResult
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateApplication(ctx, app); err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		if !params.Submit {
			return nil
		}
		var err error
		result, err = s.transition(ctx, tx, actor, app, models.StatusSubmitted, TransitionOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("application_created", "application_id", app.ID, "customer_id", app.CustomerID, "type", app.Type)
	if result != nil {
		s.afterTransition(ctx, result)
	}
	return app, nil
}

// Get returns an application visible to actor. Invisible applications are
// reported as not found.
func (s *Service) Get(ctx context.Context, actor *models.User, id int64) (*models.Application, error) {
	return s.visible(ctx, s.repo, actor, id)
}

// List returns the applications visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor *models.User, filter ListFilter) ([]models.Application, error) {
	repoFilter := repository.ApplicationFilter{Status: filter.Status, Type: filter.Type}

	switch {
	case actor == nil:
		return nil, ErrUnauthorized
	case actor.IsAdmin():
	case actor.Role == models.RoleCustomer:
		repoFilter.CustomerID = &actor.ID
	case actor.Role == models.RoleFinancierStaff:
		if actor.FinancierID == nil {
			return []models.Application{}, nil
		}
		repoFilter.FinancierID = actor.FinancierID
	default:
		return nil, ErrUnauthorized
	}

	return s.repo.ListApplications(ctx, repoFilter)
}

// Update replaces the editable fields. Customers may edit their own drafts,
// admins any open application.
func (s *Service) Update(ctx context.Context, actor *models.User, id int64, fields Fields) (*models.Application, error) {
	var app *models.Application
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		app, err = s.visible(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if app.Locked() {
			return ErrApplicationLocked
		}
		switch {
		case actor.IsAdmin():
		case actor.Role == models.RoleCustomer && app.Status == models.StatusDraft:
		default:
			return ErrUnauthorized
		}

		fields.apply(app)
		return tx.UpdateApplicationDetails(ctx, app)
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Transition moves an application to target. Checks run in order: closed
// applications are locked, then the edge must exist, then actor must be
// permitted to take it.
func (s *Service) Transition(ctx context.Context, actor *models.User, id int64, target models.Status, opts TransitionOptions) (*models.Application, error) {
	var result *transitionResult
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		app, err := s.visible(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		result, err = s.transition(ctx, tx, actor, app, target, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, result)
	app := result.app
	return &app, nil
}

// AssignFinancier links an open application to an active financier.
// Assigning the current financier again is a no-op.
func (s *Service) AssignFinancier(ctx context.Context, actor *models.User, id, financierID int64) (*models.Application, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}

	var app *models.Application
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		app, err = tx.GetApplication(ctx, id)
		if err != nil {
			return err
		}
		if app.Locked() {
			return ErrApplicationLocked
		}
		if app.FinancierID != nil && *app.FinancierID == financierID {
			return nil
		}
		if err := s.checkFinancier(ctx, tx, financierID); err != nil {
			return err
		}

		app.FinancierID = &financierID
		if err := tx.UpdateApplicationState(ctx, app, app.Status); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrApplicationLocked
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("financier_assigned", "application_id", app.ID, "financier_id", financierID, "actor_id", actor.ID)
	return app, nil
}

// History returns the status changes of an application, oldest first.
func (s *Service) History(ctx context.Context, actor *models.User, id int64) ([]models.StatusChange, error) {
	if _, err := s.visible(ctx, s.repo, actor, id); err != nil {
		return nil, err
	}
	return s.repo.ListStatusChanges(ctx, id)
}

func (s *Service) visible(ctx context.Context, repo *repository.Repository, actor *models.User, id int64) (*models.Application, error) {
	app, err := repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(actor, app) {
		return nil, repository.ErrNotFound
	}
	return app, nil
}

func (s *Service) checkFinancier(ctx context.Context, tx *repository.Repository, financierID int64) error {
	financier, err := tx.GetFinancier(ctx, financierID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrFinancierUnavailable
	}
	if err != nil {
		return err
	}
	if !financier.IsActive {
		return ErrFinancierUnavailable
	}
	return nil
}

// transition applies one lifecycle step inside tx. app is updated in place.
func (s *Service) transition(ctx context.Context, tx *repository.Repository, actor *models.User, app *models.Application, target models.Status, opts TransitionOptions) (*transitionResult, error) {
	if app.Locked() {
		return nil, ErrApplicationLocked
	}
	if !models.CanTransition(app.Status, target) {
		return nil, ErrIllegalTransition
	}
	if err := Permit(actor, app, target); err != nil {
		return nil, err
	}

	from := app.Status
	now := s.now().UTC()

	switch target {
	case models.StatusSubmitted:
		if app.ReferenceNumber == nil {
			ref, err := refnum.Next(ctx, tx, app.Type, now.Year())
			if err != nil {
				return nil, err
			}
			app.ReferenceNumber = &ref
		}
		app.SubmittedAt = &now
	case models.StatusUnderReview:
		if opts.FinancierID != nil {
			if err := s.checkFinancier(ctx, tx, *opts.FinancierID); err != nil {
				return nil, err
			}
			app.FinancierID = opts.FinancierID
		}
	}
	if target.Terminal() {
		app.ClosedAt = &now
	}
	app.Status = target

	if err := tx.UpdateApplicationState(ctx, app, from); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// another writer moved the application first
			return nil, ErrIllegalTransition
		}
		return nil, fmt.Errorf("failed to update application: %w", err)
	}

	if err := tx.AddStatusChange(ctx, &models.StatusChange{
		ApplicationID: app.ID,
		FromStatus:    from,
		ToStatus:      target,
		ActorID:       &actor.ID,
		Note:          opts.Note,
	}); err != nil {
		return nil, fmt.Errorf("failed to record status change: %w", err)
	}

	return &transitionResult{app: *app, from: from, actor: actor}, nil
}

// afterTransition runs the post-commit effects of a transition. None of
// them can undo it.
func (s *Service) afterTransition(ctx context.Context, r *transitionResult) {
	app := r.app
	slog.Info("application_transition",
		"application_id", app.ID,
		"from", r.from,
		"to", app.Status,
		"actor_id", r.actor.ID,
	)
	metrics.Transitions.WithLabelValues(string(r.from), string(app.Status)).Inc()

	event := events.StatusChanged{
		ApplicationID: app.ID,
		Type:          app.Type,
		From:          r.from,
		To:            app.Status,
		CustomerID:    app.CustomerID,
		FinancierID:   app.FinancierID,
		ActorID:       r.actor.ID,
		OccurredAt:    app.UpdatedAt,
	}
	if app.ReferenceNumber != nil {
		event.ReferenceNumber = *app.ReferenceNumber
	}
	events.Publish(ctx, s.publisher, event)

	// customers are not told about their own actions
	if r.actor.ID == app.CustomerID {
		return
	}
	customer, err := s.repo.GetUserByID(ctx, app.CustomerID)
	if err != nil {
		slog.WarnContext(ctx, "notification_failed", "application_id", app.ID, "error", err)
		metrics.NotificationsFailed.WithLabelValues(string(email.KindStatusChanged)).Inc()
		return
	}
	email.Dispatch(ctx, s.sender, customer.Email, email.KindStatusChanged, email.Data{
		FirstName:     customer.FirstName,
		ApplicationID: app.ID,
		Reference:     event.ReferenceNumber,
		Status:        app.Status,
	})
}
