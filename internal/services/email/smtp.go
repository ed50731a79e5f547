// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/kantama/portal/internal/config"
	"codeberg.org/kantama/portal/internal/metrics"
	"github.com/wneessen/go-mail"
)

// SMTPSender delivers notices through an SMTP relay.
type SMTPSender struct {
	cfg      *config.SMTPConfig
	composer *Composer
}

// NewSMTPSender creates an SMTP sender. Links in notices point at frontendURL.
func NewSMTPSender(cfg *config.SMTPConfig, frontendURL string) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &SMTPSender{
		cfg:      cfg,
		composer: NewComposer(frontendURL),
	}, nil
}

// Send composes the notice and delivers it.
func (s *SMTPSender) Send(ctx context.Context, to string, kind Kind, data Data) error {
	msg, err := s.Build(ctx, to, kind, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("%w: creating mail client: %w", ErrDelivery, err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: sending email: %w", ErrDelivery, err)
	}

	metrics.NotificationsSent.WithLabelValues(string(kind)).Inc()
	return nil
}

// Build composes the mail message for a notice without sending it.
func (s *SMTPSender) Build(ctx context.Context, to string, kind Kind, data Data) (*mail.Msg, error) {
	composed, err := s.composer.Compose(ctx, kind, data)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(composed.Subject)
	msg.SetBodyString(mail.TypeTextPlain, composed.Text)

	var html strings.Builder
	if err := composed.HTML.Render(ctx, &html); err != nil {
		return nil, fmt.Errorf("rendering html body: %w", err)
	}
	msg.AddAlternativeString(mail.TypeTextHTML, html.String())

	return msg, nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	// Add authentication if credentials are provided
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts
}
