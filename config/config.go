package config

import "time"

// Config for application setup
type Config interface {
	BadgerPath() (string, error)
	PushoverAPIToken() (string, error)
	ListenAddr() string
	APIBaseURL() string
	LogLevel() string
	LogJSON() bool
	Email() Email
	Reminder() Reminder
}

// Email delivery settings. SendGrid is the primary provider, SMTP the fallback relay.
type Email struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
}

// Reminder session and backup scheduler timings
type Reminder struct {
	PollInterval      time.Duration
	FocusDelay        time.Duration
	WakeCheckInterval time.Duration
	DueCheckSchedule  string
}
