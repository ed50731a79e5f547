// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package events publishes application status changes for downstream
// consumers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"codeberg.org/kantama/portal/internal/metrics"
	"codeberg.org/kantama/portal/internal/models"
)

// StatusChanged is emitted after a committed application transition.
type StatusChanged struct {
	ApplicationID   int64                  `json:"application_id"`
	ReferenceNumber string                 `json:"reference_number,omitempty"`
	Type            models.ApplicationType `json:"application_type"`
	From            models.Status          `json:"from_status"`
	To              models.Status          `json:"to_status"`
	CustomerID      int64                  `json:"customer_id"`
	FinancierID     *int64                 `json:"financier_id,omitempty"`
	ActorID         int64                  `json:"actor_id"`
	OccurredAt      time.Time              `json:"occurred_at"`
}

// Publisher delivers status events.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChanged) error
}

// LogPublisher logs events. It is used when no broker is configured.
type LogPublisher struct{}

// PublishStatusChanged implements Publisher.
func (LogPublisher) PublishStatusChanged(ctx context.Context, event StatusChanged) error {
	slog.DebugContext(ctx, "status_changed",
		"application_id", event.ApplicationID,
		"from", event.From,
		"to", event.To,
	)
	return nil
}

// Fanout delivers each event to every publisher in order. One failing
// publisher does not stop the others.
type Fanout []Publisher

// PublishStatusChanged implements Publisher.
func (f Fanout) PublishStatusChanged(ctx context.Context, event StatusChanged) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishStatusChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish delivers event on a best-effort basis. The transition is already
// committed, so failures are logged and counted only.
func Publish(ctx context.Context, p Publisher, event StatusChanged) {
	if p == nil {
		return
	}
	err := p.PublishStatusChanged(ctx, event)
	metrics.EventsPublished.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	if err != nil {
		slog.WarnContext(ctx, "event_publish_failed",
			"application_id", event.ApplicationID,
			"to", event.To,
			"error", err,
		)
	}
}
