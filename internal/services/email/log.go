// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"

	"codeberg.org/kantama/portal/internal/metrics"
)

// LogSender writes notices to the log instead of mailing them. It is used
// when no SMTP relay is configured, so links can be followed in development.
type LogSender struct {
	composer *Composer
}

// NewLogSender creates a LogSender.
func NewLogSender(frontendURL string) *LogSender {
	return &LogSender{composer: NewComposer(frontendURL)}
}

// Send logs the subject and link of the notice.
func (s *LogSender) Send(ctx context.Context, to string, kind Kind, data Data) error {
	msg, err := s.composer.Compose(ctx, kind, data)
	if err != nil {
		return err
	}
	link, _ := s.composer.ActionURL(kind, data)

	slog.Info("notification_logged",
		"to", to,
		"kind", string(kind),
		"subject", msg.Subject,
		"link", link,
	)
	metrics.NotificationsSent.WithLabelValues(string(kind)).Inc()
	return nil
}
