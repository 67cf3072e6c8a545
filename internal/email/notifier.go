// Package email delivers the out-of-band messages of the auth flows.
package email

import (
	"context"
	"log/slog"
)

// Template identifiers understood by every Notifier.
const (
	TemplateVerifyEmail   = "verify-email"
	TemplatePasswordReset = "password-reset"
)

// Payload keys.
const (
	KeyName  = "name"
	KeyToken = "token"
)

// Notifier sends a templated message to one recipient.
type Notifier interface {
	Send(ctx context.Context, to, templateID string, payload map[string]string) error
}

// LogNotifier records sends without delivering anything. Used when SMTP is not configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the template and recipient. The payload is not logged since it carries secrets.
func (n *LogNotifier) Send(ctx context.Context, to, templateID string, _ map[string]string) error {
	n.logger.InfoContext(ctx, "email delivery disabled, message dropped",
		"template", templateID,
		"to", to,
	)
	return nil
}
