// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates renders the HTML parts of outgoing notices.
package templates

import (
	"context"

	"codeberg.org/kantama/portal/internal/i18n"
	"codeberg.org/kantama/portal/internal/models"
)

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return i18n.T(ctx, messageID)
}

// TData translates a message with template data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	return i18n.TData(ctx, messageID, data)
}

// Locale returns the current locale.
func Locale(ctx context.Context) string {
	return i18n.GetLocale(ctx)
}

// StatusLabel returns the localized name of an application status.
func StatusLabel(ctx context.Context, status models.Status) string {
	return i18n.T(ctx, "status_"+string(status))
}
