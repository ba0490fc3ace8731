package reminder

import (
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/medibot/log"
)

// Reporter shows short, non-blocking messages to the user. It must be safe for
// concurrent use.
type Reporter interface {
	Report(level zerolog.Level, message string)
}

// LogReporter writes user messages to the log
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter for a user
func NewLogReporter(userID string) LogReporter {
	return LogReporter{logger: log.WithUserID("notice", userID)}
}

// Report the message
func (r LogReporter) Report(level zerolog.Level, message string) {
	r.logger.WithLevel(level).Msg(message)
}
