package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvDefaults(t *testing.T) {
	t.Setenv(BadgerPathEnv, "")
	t.Setenv(PushoverAPITokenEnv, "")

	e, err := NewEnv()
	require.NoError(t, err)

	_, err = e.BadgerPath()
	assert.ErrorIs(t, err, ErrEnvVariableNotSet)

	_, err = e.PushoverAPIToken()
	assert.ErrorIs(t, err, ErrEnvVariableNotSet)

	assert.Equal(t, ":8080", e.ListenAddr())
	assert.Equal(t, "http://127.0.0.1:8080", e.APIBaseURL())
	assert.Equal(t, "info", e.LogLevel())

	r := e.Reminder()
	assert.Equal(t, 5*time.Minute, r.PollInterval)
	assert.Equal(t, time.Second, r.FocusDelay)
	assert.Equal(t, "@every 1m", r.DueCheckSchedule)

	assert.Equal(t, 587, e.Email().SMTPPort)
	assert.Equal(t, "MediBot", e.Email().FromName)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(BadgerPathEnv, "/var/lib/medibot")
	t.Setenv(PushoverAPITokenEnv, "app-token")
	t.Setenv("API_BASE_URL", "https://medibot.example.com/")
	t.Setenv("REMINDER_POLL_INTERVAL", "90s")

	e, err := NewEnv()
	require.NoError(t, err)

	path, err := e.BadgerPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/medibot", path)

	token, err := e.PushoverAPIToken()
	require.NoError(t, err)
	assert.Equal(t, "app-token", token)

	assert.Equal(t, "https://medibot.example.com", e.APIBaseURL())
	assert.Equal(t, 90*time.Second, e.Reminder().PollInterval)
}

func TestEnvDotEnvFile(t *testing.T) {
	t.Setenv("SENDGRID_API_KEY", "")
	// godotenv never overrides variables that are already set, so clear it first
	os.Unsetenv("SENDGRID_API_KEY")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SENDGRID_API_KEY=sg-key\n"), 0o600))

	e, err := NewEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "sg-key", e.Email().SendGridAPIKey)

	os.Unsetenv("SENDGRID_API_KEY")
}

func TestEnvInvalidDuration(t *testing.T) {
	t.Setenv("FOCUS_DELAY", "soon")

	_, err := NewEnv()
	assert.Error(t, err)
}
