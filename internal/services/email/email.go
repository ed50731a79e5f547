// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email composes and delivers the notices sent to users.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"codeberg.org/kantama/portal/internal/i18n"
	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/templates"
	"github.com/a-h/templ"
)

// Kind identifies the notice template.
type Kind string

const (
	KindVerifyEmail   Kind = "verify_email"
	KindResetPassword Kind = "reset_password"
	KindWelcome       Kind = "welcome"
	KindStatusChanged Kind = "status_changed"
)

var (
	// ErrDelivery wraps every failure to hand a notice to the transport.
	ErrDelivery = errors.New("notice delivery failed")
	// ErrUnknownKind is returned for a Kind without a template.
	ErrUnknownKind = errors.New("unknown notice kind")
)

// Data carries the variable parts of a notice.
type Data struct {
	FirstName     string
	Token         string
	ApplicationID int64
	Reference     string
	Status        models.Status
}

// Sender delivers a notice to a single recipient.
type Sender interface {
	Send(ctx context.Context, to string, kind Kind, data Data) error
}

// Message is a composed notice ready for a transport.
type Message struct {
	Subject string
	Text    string
	HTML    templ.Component
}

// Composer renders notices in the locale carried by the context.
type Composer struct {
	frontendURL string
}

// NewComposer creates a Composer whose links point at frontendURL.
func NewComposer(frontendURL string) *Composer {
	return &Composer{frontendURL: strings.TrimSuffix(frontendURL, "/")}
}

// ActionURL returns the link a notice of the given kind points to.
func (c *Composer) ActionURL(kind Kind, data Data) (string, error) {
	switch kind {
	case KindVerifyEmail:
		return c.frontendURL + "/verify?token=" + url.QueryEscape(data.Token), nil
	case KindResetPassword:
		return c.frontendURL + "/reset-password?token=" + url.QueryEscape(data.Token), nil
	case KindWelcome:
		return c.frontendURL + "/login", nil
	case KindStatusChanged:
		return c.frontendURL + "/dashboard/applications/" + strconv.FormatInt(data.ApplicationID, 10), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Compose builds the subject, plain text and HTML body of a notice.
func (c *Composer) Compose(ctx context.Context, kind Kind, data Data) (*Message, error) {
	actionURL, err := c.ActionURL(kind, data)
	if err != nil {
		return nil, err
	}

	vars := map[string]any{
		"FirstName": data.FirstName,
		"ActionURL": actionURL,
		"Reference": data.Reference,
		"Status":    templates.StatusLabel(ctx, data.Status),
	}
	prefix := "email_" + string(kind)

	content := templates.EmailContent{
		Body:        i18n.TData(ctx, prefix+"_body", vars),
		ActionLabel: i18n.T(ctx, prefix+"_action"),
		ActionURL:   actionURL,
		Signature:   i18n.T(ctx, "email_signature"),
	}
	if data.FirstName != "" {
		content.Greeting = i18n.TData(ctx, "email_greeting", vars)
	}

	var text strings.Builder
	if content.Greeting != "" {
		text.WriteString(content.Greeting + "\n\n")
	}
	text.WriteString(content.Body + "\n\n" + content.Signature + "\n")

	return &Message{
		Subject: i18n.TData(ctx, prefix+"_subject", vars),
		Text:    text.String(),
		HTML:    templates.Email(content),
	}, nil
}
