// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package applications

import (
	"codeberg.org/kantama/portal/internal/models"
	"github.com/samber/lo"
)

type edge struct {
	from, to models.Status
}

// Edges each non-admin role may take. Admins may take every edge of
// models.Transitions.
var roleEdges = map[models.Role][]edge{
	models.RoleCustomer: {
		{models.StatusDraft, models.StatusSubmitted},
		{models.StatusDraft, models.StatusCancelled},
		{models.StatusSubmitted, models.StatusCancelled},
	},
	models.RoleFinancierStaff: {
		{models.StatusUnderReview, models.StatusApproved},
		{models.StatusUnderReview, models.StatusRejected},
		{models.StatusApproved, models.StatusFunded},
	},
}

// Permit reports whether actor may move app to target. It does not consult
// the transition table; callers check legality first.
func Permit(actor *models.User, app *models.Application, target models.Status) error {
	if actor == nil || !actor.IsActive || !CanView(actor, app) {
		return ErrUnauthorized
	}
	if actor.IsAdmin() {
		return nil
	}
	if lo.Contains(roleEdges[actor.Role], edge{app.Status, target}) {
		return nil
	}
	return ErrUnauthorized
}

// CanView reports whether actor may see app. Customers see their own
// applications and financier staff those assigned to their financier.
func CanView(actor *models.User, app *models.Application) bool {
	if actor == nil {
		return false
	}
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return app.CustomerID == actor.ID
	case models.RoleFinancierStaff:
		return actor.FinancierID != nil && app.FinancierID != nil && *actor.FinancierID == *app.FinancierID
	}
	return false
}
