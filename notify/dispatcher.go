package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/log"
	"git.0xdad.com/tblyler/medibot/metrics"
)

// TokenResolver finds the current push token of a user
type TokenResolver interface {
	PushToken(ctx context.Context, userID string) (string, error)
}

// UserStore reads user profiles
type UserStore interface {
	GetUserByID(id uuid.UUID) (*db.User, error)
}

// EmailResolver finds the current email address of a user
type EmailResolver interface {
	EmailAddress(ctx context.Context, userID string) (string, error)
}

// UserTokens resolves push tokens and email addresses from the user profile on every call
type UserTokens struct {
	Users UserStore
}

func (u UserTokens) user(userID string) (*db.User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	user, err := u.Users.GetUserByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile of user %s: %w", userID, err)
	}

	return user, nil
}

// PushToken of the user
func (u UserTokens) PushToken(_ context.Context, userID string) (string, error) {
	user, err := u.user(userID)
	if err != nil {
		return "", err
	}

	token, err := user.PushToken()
	if err != nil {
		return "", fmt.Errorf("user %s: %w", userID, err)
	}

	return token, nil
}

// EmailAddress of the user
func (u UserTokens) EmailAddress(_ context.Context, userID string) (string, error) {
	user, err := u.user(userID)
	if err != nil {
		return "", err
	}

	return user.Email, nil
}

// Dispatcher fans a notification out to the push and email channels
type Dispatcher struct {
	tokens  TokenResolver
	push    PushSender
	email   EmailSender
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewDispatcher for the given channels. A nil sender makes its channel fail with
// ErrNotConfigured. When tokens is also an EmailResolver the address is looked up at send
// time instead of taken from the notification.
func NewDispatcher(tokens TokenResolver, push PushSender, email EmailSender, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		tokens:  tokens,
		push:    push,
		email:   email,
		metrics: m,
		logger:  log.WithComponent("notify"),
	}
}

// Dispatch sends n over both channels concurrently and waits for both to finish.
// A failing or panicking channel never affects the other one.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) Result {
	start := time.Now()

	var result Result
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		result.Push = guard("push", func() error { return d.sendPush(ctx, n) })
	}()

	go func() {
		defer wg.Done()
		result.Email = guard("email", func() error { return d.sendEmail(ctx, n) })
	}()

	wg.Wait()

	d.metrics.ObserveDelivery("push", result.Push)
	d.metrics.ObserveDelivery("email", result.Email)
	d.metrics.ObserveDispatch(string(n.Kind), time.Since(start).Seconds())

	logger := d.logger.With().Str("user_id", n.UserID).Str("kind", string(n.Kind)).Logger()
	switch {
	case result.OK():
		logger.Debug().Str("title", n.Title).Msg("notification delivered")
	case result.Partial():
		logger.Warn().Err(result.Err()).Str("title", n.Title).Msg("notification partially delivered")
	default:
		logger.Error().Err(result.Err()).Str("title", n.Title).Msg("notification not delivered")
	}

	return result
}

func guard(channel string, send func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s channel panicked: %v", channel, r)
		}
	}()

	return send()
}

func (d *Dispatcher) sendPush(ctx context.Context, n Notification) error {
	if d.push == nil || d.tokens == nil {
		return fmt.Errorf("push: %w", ErrNotConfigured)
	}

	token, err := d.tokens.PushToken(ctx, n.UserID)
	if err != nil {
		return err
	}

	return d.push.SendPush(ctx, PushMessage{
		Token: token,
		Title: n.Title,
		Body:  n.Body,
	})
}

func (d *Dispatcher) sendEmail(ctx context.Context, n Notification) error {
	if d.email == nil {
		return fmt.Errorf("email: %w", ErrNotConfigured)
	}

	to := n.Email
	if resolver, ok := d.tokens.(EmailResolver); ok && n.UserID != "" {
		address, err := resolver.EmailAddress(ctx, n.UserID)
		if err != nil {
			return err
		}

		to = address
	}

	if err := ValidateEmail(to); err != nil {
		return err
	}

	_, err := d.email.SendEmail(ctx, EmailMessage{
		To:      to,
		Subject: n.Title,
		Message: n.Body,
	})

	return err
}
