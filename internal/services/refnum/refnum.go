// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package refnum assigns human-readable application reference numbers of
// the form LEA-2025-00001.
package refnum

import (
	"context"
	"fmt"

	"codeberg.org/kantama/portal/internal/models"
)

// Sequencer atomically increments the counter of a (type code, year) pair.
// *repository.Repository implements it; inside a transaction the increment
// commits or rolls back with the caller.
type Sequencer interface {
	NextReferenceSequence(ctx context.Context, typeCode string, year int) (int64, error)
}

// Next returns the next reference number for appType in year. Values are
// never reused, even when the application is later cancelled.
func Next(ctx context.Context, seq Sequencer, appType models.ApplicationType, year int) (string, error) {
	if !appType.Valid() {
		return "", fmt.Errorf("unknown application type %q", appType)
	}
	n, err := seq.NextReferenceSequence(ctx, appType.Code(), year)
	if err != nil {
		return "", fmt.Errorf("failed to allocate reference number: %w", err)
	}
	return Format(appType.Code(), year, n), nil
}

// Format renders a reference number. The sequence is zero-padded to five
// digits and grows past that when needed.
func Format(code string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%05d", code, year, seq)
}
