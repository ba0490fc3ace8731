// Package notify delivers notifications to a user over push and email at the same time.
package notify

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"git.0xdad.com/tblyler/medibot/db"
)

// Kind of notification
type Kind string

const (
	KindReminder Kind = "reminder"
	KindCreated  Kind = "created"
	KindUpdated  Kind = "updated"
	KindDeleted  Kind = "deleted"
	KindError    Kind = "error"
	KindTest     Kind = "test"
)

var (
	// ErrNoPushToken occurs when the recipient has no push token on their profile
	ErrNoPushToken = db.ErrNoPushToken
	// ErrInvalidEmail occurs when the recipient email address is not plausible
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrNotConfigured occurs when a channel has no sender
	ErrNotConfigured = errors.New("channel not configured")
)

// Notification for one user
type Notification struct {
	Kind   Kind
	UserID string
	Email  string
	Title  string
	Body   string
}

// Result of a dispatch, one error per channel
type Result struct {
	Push  error
	Email error
}

// OK when every channel delivered
func (r Result) OK() bool {
	return r.Push == nil && r.Email == nil
}

// Partial when exactly one channel delivered
func (r Result) Partial() bool {
	return (r.Push == nil) != (r.Email == nil)
}

// Failed when no channel delivered
func (r Result) Failed() bool {
	return r.Push != nil && r.Email != nil
}

// Err joins the channel errors, nil when OK
func (r Result) Err() error {
	var errs []error
	if r.Push != nil {
		errs = append(errs, fmt.Errorf("push: %w", r.Push))
	}

	if r.Email != nil {
		errs = append(errs, fmt.Errorf("email: %w", r.Email))
	}

	return errors.Join(errs...)
}

// ValidateEmail checks that address is a single bare email address
func ValidateEmail(address string) error {
	address = strings.TrimSpace(address)
	if !strings.Contains(address, "@") {
		return fmt.Errorf("%q: %w", address, ErrInvalidEmail)
	}

	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return fmt.Errorf("%q: %w", address, ErrInvalidEmail)
	}

	return nil
}

// Reminder to take a medication
func Reminder(userID, email, medication, dosage string) Notification {
	body := "Time to take your " + medication
	if dosage != "" {
		body += " (" + dosage + ")"
	}

	return Notification{
		Kind:   KindReminder,
		UserID: userID,
		Email:  email,
		Title:  "Medication Reminder: " + medication,
		Body:   body,
	}
}
