package notify

import (
	"context"
	"fmt"

	"github.com/gregdel/pushover"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/medibot/log"
)

// PushMessage to a single push token
type PushMessage struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushSender delivers push messages
type PushSender interface {
	SendPush(ctx context.Context, msg PushMessage) error
}

// PushoverSender delivers push messages through Pushover. The push token is the
// recipient's Pushover user key.
type PushoverSender struct {
	app    *pushover.Pushover
	logger zerolog.Logger
}

// NewPushoverSender for the Pushover application token
func NewPushoverSender(apiToken string) *PushoverSender {
	return &PushoverSender{
		app:    pushover.New(apiToken),
		logger: log.WithComponent("pushover"),
	}
}

// SendPush message
func (p *PushoverSender) SendPush(ctx context.Context, msg PushMessage) error {
	if msg.Token == "" {
		return ErrNoPushToken
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	message := pushover.NewMessageWithTitle(msg.Body, msg.Title)

	response, err := p.app.SendMessage(message, pushover.NewRecipient(msg.Token))
	if err != nil {
		return fmt.Errorf("failed to send pushover message: %w", err)
	}

	p.logger.Debug().Str("request", response.ID).Str("title", msg.Title).Msg("push sent")

	return nil
}
