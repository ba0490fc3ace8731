package notify

import (
	"context"
	"fmt"
	"time"

	gomail "gopkg.in/mail.v2"
)

// SMTPConfig for SMTPSender
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender delivers email through an SMTP relay
type SMTPSender struct {
	from     string
	fromName string
	send     func(*gomail.Message) error
}

// NewSMTPSender returns nil when no host is configured
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Host == "" {
		return nil
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = 30 * time.Second

	return newSMTPSender(cfg, dialer.DialAndSend)
}

func newSMTPSender(cfg SMTPConfig, send func(...*gomail.Message) error) *SMTPSender {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	if cfg.FromName == "" {
		cfg.FromName = "MediBot"
	}

	return &SMTPSender{
		from:     from,
		fromName: cfg.FromName,
		send: func(m *gomail.Message) error {
			return send(m)
		},
	}
}

// Name of the provider
func (s *SMTPSender) Name() string {
	return "SMTP"
}

// SendEmail through the relay
func (s *SMTPSender) SendEmail(ctx context.Context, msg EmailMessage) (*Receipt, error) {
	if s.from == "" {
		return nil, fmt.Errorf("smtp sender address: %w", ErrNotConfigured)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	html, err := msg.html()
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Message)
	m.AddAlternative("text/html", html)

	if err := s.send(m); err != nil {
		return nil, fmt.Errorf("failed to send email via smtp: %w", err)
	}

	return &Receipt{Provider: s.Name()}, nil
}
