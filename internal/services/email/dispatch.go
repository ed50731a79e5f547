// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"

	"codeberg.org/kantama/portal/internal/metrics"
)

// Dispatch sends a notice on a best-effort basis. Failures are logged and
// counted but never returned; the operation that triggered the notice has
// already been committed.
func Dispatch(ctx context.Context, sender Sender, to string, kind Kind, data Data) {
	if sender == nil {
		return
	}
	if err := sender.Send(ctx, to, kind, data); err != nil {
		slog.WarnContext(ctx, "notification_failed", "to", to, "kind", string(kind), "error", err)
		metrics.NotificationsFailed.WithLabelValues(string(kind)).Inc()
	}
}
