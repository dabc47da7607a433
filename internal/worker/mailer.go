package worker

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailSender delivers plain-text email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig holds configuration for the SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends email through a plain SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
}

// NewSMTPMailer creates a new SMTP mailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{config: cfg}
}

// Send delivers a plain-text message to a single recipient.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.config.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}

	return nil
}

// Ensure SMTPMailer implements EmailSender.
var _ EmailSender = (*SMTPMailer)(nil)
