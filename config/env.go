package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// BadgerPathEnv name
	BadgerPathEnv = "BADGER_PATH"
	// PushoverAPITokenEnv name
	PushoverAPITokenEnv = "PUSHOVER_API_TOKEN"
)

var (
	// ErrEnvVariableNotSet occurs when an environment variable is not set
	ErrEnvVariableNotSet = errors.New("environment variable is not set")
)

type settings struct {
	BadgerPath       string `envconfig:"BADGER_PATH"`
	PushoverAPIToken string `envconfig:"PUSHOVER_API_TOKEN"`

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	APIBaseURL string `envconfig:"API_BASE_URL"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON    bool   `envconfig:"LOG_JSON" default:"false"`

	SendGridAPIKey string `envconfig:"SENDGRID_API_KEY"`
	FromEmail      string `envconfig:"FROM_EMAIL" default:"reminders@medibot.local"`
	FromName       string `envconfig:"FROM_NAME" default:"MediBot"`
	SMTPHost       string `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort       int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser       string `envconfig:"SMTP_USER"`
	SMTPPass       string `envconfig:"SMTP_PASS"`

	PollInterval      time.Duration `envconfig:"REMINDER_POLL_INTERVAL" default:"5m"`
	FocusDelay        time.Duration `envconfig:"FOCUS_DELAY" default:"1s"`
	WakeCheckInterval time.Duration `envconfig:"WAKE_CHECK_INTERVAL" default:"30s"`
	DueCheckSchedule  string        `envconfig:"DUE_CHECK_SCHEDULE" default:"@every 1m"`
}

// Env variable Config implementation
type Env struct {
	s settings
}

// NewEnv reads the environment, after loading any of the given dotenv files that exist
func NewEnv(dotEnvFiles ...string) (*Env, error) {
	for _, path := range dotEnvFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	e := &Env{}
	if err := envconfig.Process("", &e.s); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	return e, nil
}

// BadgerPath for the database directory
func (e *Env) BadgerPath() (string, error) {
	if e.s.BadgerPath == "" {
		return "", fmt.Errorf(
			"unable to get badger path from env variable %s: %w",
			BadgerPathEnv,
			ErrEnvVariableNotSet,
		)
	}

	return e.s.BadgerPath, nil
}

// PushoverAPIToken getter
func (e *Env) PushoverAPIToken() (string, error) {
	if e.s.PushoverAPIToken == "" {
		return "", fmt.Errorf(
			"unable to get pushover API token from env variable %s: %w",
			PushoverAPITokenEnv,
			ErrEnvVariableNotSet,
		)
	}

	return e.s.PushoverAPIToken, nil
}

// ListenAddr for the HTTP API
func (e *Env) ListenAddr() string {
	return e.s.ListenAddr
}

// APIBaseURL sessions use to reach the API. Derived from ListenAddr when unset.
func (e *Env) APIBaseURL() string {
	if e.s.APIBaseURL != "" {
		return strings.TrimRight(e.s.APIBaseURL, "/")
	}

	addr := e.s.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}

	return "http://" + addr
}

// LogLevel getter
func (e *Env) LogLevel() string {
	return e.s.LogLevel
}

// LogJSON getter
func (e *Env) LogJSON() bool {
	return e.s.LogJSON
}

// Email settings
func (e *Env) Email() Email {
	return Email{
		SendGridAPIKey: e.s.SendGridAPIKey,
		FromEmail:      e.s.FromEmail,
		FromName:       e.s.FromName,
		SMTPHost:       e.s.SMTPHost,
		SMTPPort:       e.s.SMTPPort,
		SMTPUser:       e.s.SMTPUser,
		SMTPPass:       e.s.SMTPPass,
	}
}

// Reminder timings
func (e *Env) Reminder() Reminder {
	return Reminder{
		PollInterval:      e.s.PollInterval,
		FocusDelay:        e.s.FocusDelay,
		WakeCheckInterval: e.s.WakeCheckInterval,
		DueCheckSchedule:  e.s.DueCheckSchedule,
	}
}

var _ Config = (*Env)(nil)
