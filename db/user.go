package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// PlanBase users do not get medication reminders
	PlanBase = "base"
	// PlanPremium users get medication reminders
	PlanPremium = "premium"

	// DefaultPushoverDevice names the token used as the user's push token
	DefaultPushoverDevice = "default"
)

// ErrNoPushToken occurs when a user has no default pushover device token
var ErrNoPushToken = errors.New("no push token found for user")

// User information
type User struct {
	ID                   uuid.UUID         `json:"id"`
	Name                 string            `json:"name"`
	Email                string            `json:"email"`
	Plan                 string            `json:"plan"`
	PushoverDeviceTokens map[string]string `json:"pushover_device_tokens"`
	CreatedAt            time.Time         `json:"created_at"`
}

// RemindersEnabled reports whether the user's plan includes medication reminders
func (u *User) RemindersEnabled() bool {
	return u.Plan != PlanBase
}

// PushToken is the default pushover device token
func (u *User) PushToken() (string, error) {
	token := u.PushoverDeviceTokens[DefaultPushoverDevice]
	if token == "" {
		return "", ErrNoPushToken
	}

	return token, nil
}

func (u *User) badgerKey() []byte {
	return badgerKeyForUsername(u.Name)
}

func badgerKeyForUsername(username string) []byte {
	return append([]byte("user:"), []byte(username)...)
}

func badgerKeyForUserID(id uuid.UUID) []byte {
	return append([]byte("user_id:"), id[:]...)
}
