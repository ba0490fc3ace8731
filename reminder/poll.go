package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/medibot/log"
)

// DefaultPollInterval between server reminder checks
const DefaultPollInterval = 5 * time.Minute

// Checker asks the server to deliver reminders that came due
type Checker interface {
	CheckReminders(ctx context.Context) (int, error)
}

// Poller checks for due server-side reminders once on Start and then every interval
type Poller struct {
	checker  Checker
	interval time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger

	// the check run by Start
	first sync.WaitGroup
}

// NewPoller for the checker
func NewPoller(checker Checker, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		checker:  checker,
		interval: interval,
		logger:   logger,
	}
}

// Start polling until ctx is done or Stop is called
func (p *Poller) Start(ctx context.Context) error {
	p.cron = cron.New(cron.WithLogger(log.CronLogger{Logger: p.logger}))

	_, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.interval), func() {
		p.check(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder check every %s: %w", p.interval, err)
	}

	p.first.Add(1)
	go func() {
		defer p.first.Done()
		p.check(ctx)
	}()

	p.cron.Start()

	return nil
}

// Stop polling, waiting for a running check to finish
func (p *Poller) Stop() {
	if p.cron == nil {
		return
	}

	<-p.cron.Stop().Done()
	p.first.Wait()
}

func (p *Poller) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	processed, err := p.checker.CheckReminders(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("reminder check failed")
		return
	}

	if processed > 0 {
		p.logger.Info().Int("processed", processed).Msg("due reminders delivered by the server")
		return
	}

	p.logger.Debug().Msg("no due reminders")
}
