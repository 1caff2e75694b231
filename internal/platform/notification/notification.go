// Package notification delivers transactional email for appointment
// lifecycle events with template rendering and swappable senders.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Sender Interfaces
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "appointment-confirmed",
			Name:    "Appointment Confirmed",
			Subject: "Your appointment on {{date}} is confirmed",
			Body:    "Dear {{client_name}}, your appointment with {{lawyer_name}} on {{date}} at {{time}} has been confirmed.",
		},
		{
			ID:      "appointment-reminder-client",
			Name:    "Appointment Reminder (Client)",
			Subject: "Upcoming appointment at {{time}}",
			Body:    "Dear {{client_name}}, this is a reminder of your appointment with {{lawyer_name}} today at {{time}}.",
		},
		{
			ID:      "appointment-reminder-lawyer",
			Name:    "Appointment Reminder (Lawyer)",
			Subject: "Upcoming appointment at {{time}}",
			Body:    "Dear {{lawyer_name}}, this is a reminder of your appointment with {{client_name}} today at {{time}}.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// Mailer pairs a sender with the template engine. Domain services render and
// send through it rather than touching senders directly.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
}

// NewMailer constructs a Mailer.
func NewMailer(sender EmailSender, tpl *TemplateEngine) *Mailer {
	return &Mailer{sender: sender, templates: tpl}
}

// SendTemplate renders a template and sends the result to the recipient.
func (m *Mailer) SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) error {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	if err := m.sender.SendEmail(ctx, recipient, subject, body); err != nil {
		return fmt.Errorf("send %s to %s: %w", templateID, recipient, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// SMTP Sender
// ---------------------------------------------------------------------------

// SMTPConfig carries the connection settings for the outbound mail relay.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// SendEmail sends a single message. SMTP has no context support, so the ctx
// is only checked before dialing.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Log Sender
// ---------------------------------------------------------------------------

// LogEmailSender writes messages to the log instead of delivering them. Used
// in development where no relay is configured.
type LogEmailSender struct {
	logger zerolog.Logger
}

// NewLogEmailSender constructs a LogEmailSender.
func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("email (not sent, log sender)")
	return nil
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string

	// FailFor makes only the listed recipients fail when ShouldFail is false.
	FailFor map[string]bool
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail || m.FailFor[to] {
		if m.FailError == "" {
			return errors.New("send failed")
		}
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
