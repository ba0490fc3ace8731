package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/medibot/log"
	"git.0xdad.com/tblyler/medibot/metrics"
)

// EmailMessage to a single recipient. HTML is rendered from Message when empty.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	HTML    string `json:"-"`
}

func (m EmailMessage) html() (string, error) {
	if m.HTML != "" {
		return m.HTML, nil
	}

	return RenderEmail(m.To, m.Subject, m.Message)
}

// Receipt for a delivered email
type Receipt struct {
	Provider string `json:"provider"`
	ID       string `json:"id,omitempty"`
	Fallback bool   `json:"fallback"`
}

// EmailSender delivers emails
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) (*Receipt, error)
}

// EmailProvider is an EmailSender with a display name
type EmailProvider interface {
	EmailSender
	Name() string
}

// BothFailedError occurs when the primary and the fallback provider both failed
type BothFailedError struct {
	Primary     string
	PrimaryErr  error
	Fallback    string
	FallbackErr error
}

func (e *BothFailedError) Error() string {
	return fmt.Sprintf("Both email services failed. %s: %v, %s: %v", e.Primary, e.PrimaryErr, e.Fallback, e.FallbackErr)
}

// Unwrap both provider errors
func (e *BothFailedError) Unwrap() []error {
	return []error{e.PrimaryErr, e.FallbackErr}
}

// ErrNoEmailProvider occurs when neither provider is configured
var ErrNoEmailProvider = errors.New("no email provider configured")

// FallbackSender tries the primary provider and falls back to the secondary one on any error
type FallbackSender struct {
	primary  EmailProvider
	fallback EmailProvider
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewFallbackSender for the providers; either may be nil
func NewFallbackSender(primary, fallback EmailProvider, m *metrics.Metrics) *FallbackSender {
	return &FallbackSender{
		primary:  primary,
		fallback: fallback,
		metrics:  m,
		logger:   log.WithComponent("email"),
	}
}

// SendEmail through the primary provider, then the fallback
func (f *FallbackSender) SendEmail(ctx context.Context, msg EmailMessage) (*Receipt, error) {
	if err := ValidateEmail(msg.To); err != nil {
		return nil, err
	}

	html, err := msg.html()
	if err != nil {
		return nil, err
	}
	msg.HTML = html

	switch {
	case f.primary == nil && f.fallback == nil:
		return nil, ErrNoEmailProvider

	case f.primary == nil:
		f.logger.Debug().Str("provider", f.fallback.Name()).Msg("no primary email provider, using fallback")
		receipt, err := f.send(ctx, f.fallback, msg)
		if err != nil {
			return nil, fmt.Errorf("%s error: %w", f.fallback.Name(), err)
		}

		return receipt, nil
	}

	receipt, primaryErr := f.send(ctx, f.primary, msg)
	if primaryErr == nil {
		return receipt, nil
	}

	if f.fallback == nil {
		return nil, fmt.Errorf("%s error: %w", f.primary.Name(), primaryErr)
	}

	f.logger.Warn().Err(primaryErr).Str("provider", f.primary.Name()).Msg("primary email provider failed, trying fallback")

	receipt, fallbackErr := f.send(ctx, f.fallback, msg)
	if fallbackErr != nil {
		return nil, &BothFailedError{
			Primary:     f.primary.Name(),
			PrimaryErr:  primaryErr,
			Fallback:    f.fallback.Name(),
			FallbackErr: fallbackErr,
		}
	}

	receipt.Fallback = true

	return receipt, nil
}

func (f *FallbackSender) send(ctx context.Context, provider EmailProvider, msg EmailMessage) (receipt *Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			receipt, err = nil, fmt.Errorf("%s panicked: %v", provider.Name(), r)
		}

		f.metrics.ObserveEmailProvider(provider.Name(), err)
	}()

	receipt, err = provider.SendEmail(ctx, msg)
	if err != nil {
		return nil, err
	}

	if receipt == nil {
		receipt = &Receipt{}
	}

	if receipt.Provider == "" {
		receipt.Provider = provider.Name()
	}

	f.logger.Info().Str("provider", receipt.Provider).Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")

	return receipt, nil
}
