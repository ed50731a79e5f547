// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models defines the portal's persisted entities.
package models

import (
	"time"

	"github.com/samber/lo"
)

// ApplicationType is the financing product applied for.
type ApplicationType string

const (
	TypeLeasing       ApplicationType = "LEASING"
	TypeSaleLeaseback ApplicationType = "SALE_LEASEBACK"
)

// Code returns the short code used in reference numbers.
func (t ApplicationType) Code() string {
	switch t {
	case TypeLeasing:
		return "LEA"
	case TypeSaleLeaseback:
		return "SLB"
	}
	return ""
}

// Valid reports whether t is a known application type.
func (t ApplicationType) Valid() bool {
	return t.Code() != ""
}

// Status is the lifecycle state of an application.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSubmitted   Status = "SUBMITTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusFunded      Status = "FUNDED"
	StatusCancelled   Status = "CANCELLED"
)

// Transitions lists the allowed target states for every state.
// Terminal states have no entry.
var Transitions = map[Status][]Status{
	StatusDraft:       {StatusSubmitted, StatusCancelled},
	StatusSubmitted:   {StatusUnderReview, StatusCancelled},
	StatusUnderReview: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:    {StatusFunded, StatusCancelled},
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusSubmitted, StatusUnderReview,
		StatusApproved, StatusRejected, StatusFunded, StatusCancelled,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return lo.Contains(AllStatuses(), s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusFunded || s == StatusRejected || s == StatusCancelled
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	return lo.Contains(Transitions[from], to)
}

// Application is a financing request moving through the lifecycle.
type Application struct { //nolint:govet // fieldalignment: readability over optimization
	ID                   int64           `db:"id" json:"id"`
	ReferenceNumber      *string         `db:"reference_number" json:"reference_number"`
	Type                 ApplicationType `db:"application_type" json:"application_type"`
	Status               Status          `db:"status" json:"status"`
	CustomerID           int64           `db:"customer_id" json:"customer_id"`
	FinancierID          *int64          `db:"financier_id" json:"financier_id"`
	CompanyName          string          `db:"company_name" json:"company_name"`
	BusinessID           string          `db:"business_id" json:"business_id"`
	ContactPerson        string          `db:"contact_person" json:"contact_person"`
	ContactEmail         string          `db:"contact_email" json:"contact_email"`
	ContactPhone         string          `db:"contact_phone" json:"contact_phone"`
	EquipmentDescription string          `db:"equipment_description" json:"equipment_description"`
	EquipmentSupplier    string          `db:"equipment_supplier" json:"equipment_supplier"`
	AmountCents          int64           `db:"amount_cents" json:"amount_cents"`
	TermMonths           int             `db:"term_months" json:"term_months"`
	Notes                string          `db:"notes" json:"notes"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
	SubmittedAt          *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`
	ClosedAt             *time.Time      `db:"closed_at" json:"closed_at,omitempty"`
}

// Locked reports whether the application has reached a terminal state.
func (a *Application) Locked() bool {
	return a.Status.Terminal()
}

// StatusChange records one successful lifecycle transition.
type StatusChange struct { //nolint:govet // fieldalignment: readability over optimization
	ID            int64     `db:"id" json:"id"`
	ApplicationID int64     `db:"application_id" json:"application_id"`
	FromStatus    Status    `db:"from_status" json:"from_status"`
	ToStatus      Status    `db:"to_status" json:"to_status"`
	ActorID       *int64    `db:"actor_id" json:"actor_id"`
	Note          string    `db:"note" json:"note"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
