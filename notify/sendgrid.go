package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridConfig for SendGridSender
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers email through the SendGrid API
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridSender returns nil when no API key is configured
func NewSendGridSender(cfg SendGridConfig) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}

	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg)
}

func newSendGridSender(client *sendgrid.Client, cfg SendGridConfig) *SendGridSender {
	if cfg.FromName == "" {
		cfg.FromName = "MediBot"
	}

	return &SendGridSender{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

// Name of the provider
func (s *SendGridSender) Name() string {
	return "SendGrid"
}

// SendEmail through SendGrid
func (s *SendGridSender) SendEmail(ctx context.Context, msg EmailMessage) (*Receipt, error) {
	if s.client == nil {
		return nil, fmt.Errorf("sendgrid: %w", ErrNotConfigured)
	}

	html, err := msg.html()
	if err != nil {
		return nil, err
	}

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, s.fromEmail),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		msg.Message,
		html,
	)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send email via sendgrid: %w", err)
	}

	if response.StatusCode >= 400 {
		return nil, fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	receipt := &Receipt{Provider: s.Name()}
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		receipt.ID = ids[0]
	}

	return receipt, nil
}
