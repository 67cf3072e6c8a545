package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"net/url"
	"sync"

	"storyboard/internal/config"

	"github.com/samber/oops"
)

type message struct {
	subject string
	path    string
	body    *template.Template
}

var messages = map[string]message{
	TemplateVerifyEmail: {
		subject: "Verify Your Email Address",
		path:    "/verify-email",
		body: template.Must(template.New(TemplateVerifyEmail).Parse(`
		<h2>Hello {{.Name}},</h2>
		<p>Please verify your email address by clicking the link below:</p>
		<p><a href="{{.URL}}">Verify Email Address</a></p>
		<p>This link will expire in 24 hours.</p>
		<p>If you did not create an account, no further action is required.</p>
	`)),
	},
	TemplatePasswordReset: {
		subject: "Reset Your Password",
		path:    "/reset-password",
		body: template.Must(template.New(TemplatePasswordReset).Parse(`
		<h2>Hello {{.Name}},</h2>
		<p>You have requested to reset your password. Click the link below to proceed:</p>
		<p><a href="{{.URL}}">Reset Password</a></p>
		<p>This link will expire in 1 hour.</p>
		<p>If you did not request a password reset, please ignore this email.</p>
	`)),
	},
}

// Service sends mail over a reused SMTP connection
type Service struct {
	config config.EmailConfig
	logger *slog.Logger
	client *smtp.Client
	mu     sync.Mutex
}

// NewService creates a new SMTP Service
func NewService(cfg config.EmailConfig, logger *slog.Logger) *Service {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

// NewNotifier returns the SMTP service when a host is configured and a LogNotifier otherwise
func NewNotifier(cfg config.EmailConfig, logger *slog.Logger) Notifier {
	if cfg.SMTPHost == "" {
		return NewLogNotifier(logger)
	}
	return NewService(cfg, logger)
}

// Render builds the subject and HTML body of a templated message
func (s *Service) Render(templateID string, payload map[string]string) (string, string, error) {
	m, ok := messages[templateID]
	if !ok {
		return "", "", oops.Code("EMAIL_UNKNOWN_TEMPLATE").With("template", templateID).Errorf("unknown email template")
	}

	link := s.config.AppURL + m.path + "?" + url.Values{"token": {payload[KeyToken]}}.Encode()

	var body bytes.Buffer
	if err := m.body.Execute(&body, map[string]string{
		"Name": payload[KeyName],
		"URL":  link,
	}); err != nil {
		return "", "", oops.Code("EMAIL_RENDER_FAILED").With("template", templateID).Wrap(err)
	}
	return m.subject, body.String(), nil
}

// Send renders and delivers one message
func (s *Service) Send(ctx context.Context, to, templateID string, payload map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := s.Render(templateID, payload)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("To: %s\r\n"+
		"From: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s", to, s.config.FromAddress, subject, body)

	s.logger.DebugContext(ctx, "sending email", "template", templateID, "smtp_host", s.config.SMTPHost)
	if err := s.sendMail([]string{to}, []byte(msg)); err != nil {
		return oops.Code("EMAIL_SEND_FAILED").With("template", templateID).Wrap(err)
	}
	return nil
}

// dialSMTP returns the pooled connection, redialling when it went stale.
// Callers hold s.mu.
func (s *Service) dialSMTP() (*smtp.Client, error) {
	if s.client != nil {
		if err := s.client.Noop(); err == nil {
			return s.client, nil
		}
		s.client.Close()
		s.client = nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	if s.config.SMTPUsername != "" {
		if err := client.Auth(smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to authenticate with SMTP server: %w", err)
		}
	}

	s.client = client
	return client, nil
}

// sendMail sends one message. The connection is shared, so the whole
// MAIL/RCPT/DATA exchange runs under the mutex.
func (s *Service) sendMail(to []string, msg []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.dialSMTP()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = client.Reset()
		}
	}()

	if err := client.Mail(s.config.FromAddress); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("failed to add recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close message writer: %w", err)
	}

	return nil
}

// Close closes the SMTP connection
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Quit()
		s.client = nil
		return err
	}
	return nil
}
