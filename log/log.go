// Package log provides the process-wide zerolog logger and component loggers.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger. It discards everything until Init is called.
var Logger = zerolog.Nop()

// Level of logging
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config for Init
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// WithComponent returns a logger tagged with the component name
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithUserID returns a logger tagged with a user id
func WithUserID(component, userID string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("user_id", userID).Logger()
}

// CronLogger adapts a zerolog logger to the cron.Logger interface
type CronLogger struct {
	Logger zerolog.Logger
}

// Info logs routine cron messages at debug level
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.Logger.Debug().Fields(keysAndValues).Msg(msg)
}

// Error logs cron failures
func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.Logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
