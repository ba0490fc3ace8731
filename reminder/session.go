package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/log"
	"git.0xdad.com/tblyler/medibot/metrics"
	"git.0xdad.com/tblyler/medibot/schedule"
)

// DefaultWakeCheckInterval between wall clock samples
const DefaultWakeCheckInterval = 30 * time.Second

// Store of users and their medications
type Store interface {
	UserStore
	SubscribeMedicationsForUser(ctx context.Context, userID uuid.UUID, fn func([]*db.Medication)) error
}

// API the session talks to
type API interface {
	Backup
	Checker
}

// SessionConfig for NewSession
type SessionConfig struct {
	User              *db.User
	Store             Store
	API               API
	Dispatcher        Dispatcher
	Clock             schedule.Clock
	Reporter          Reporter
	Metrics           *metrics.Metrics
	PollInterval      time.Duration
	FocusDelay        time.Duration
	WakeCheckInterval time.Duration
	// NewBackOff for server backup syncs and subscription restarts; exponential when nil
	NewBackOff func() backoff.BackOff
}

// Session runs one user's reminders: the controller, the server poll, the medication
// subscription and wake detection
type Session struct {
	cfg        SessionConfig
	controller *Controller
	poller     *Poller
	logger     zerolog.Logger
}

// NewSession for the configured user
func NewSession(cfg SessionConfig) *Session {
	if cfg.WakeCheckInterval <= 0 {
		cfg.WakeCheckInterval = DefaultWakeCheckInterval
	}

	logger := log.WithUserID("session", cfg.User.ID.String())

	s := &Session{
		cfg: cfg,
		controller: NewController(ControllerConfig{
			User:       cfg.User,
			Users:      cfg.Store,
			Clock:      cfg.Clock,
			Dispatcher: cfg.Dispatcher,
			Backup:     cfg.API,
			Reporter:   cfg.Reporter,
			Metrics:    cfg.Metrics,
			FocusDelay: cfg.FocusDelay,
			NewBackOff: cfg.NewBackOff,
		}),
		logger: logger,
	}

	if cfg.API != nil {
		s.poller = NewPoller(cfg.API, cfg.PollInterval, log.WithUserID("poll", cfg.User.ID.String()))
	}

	return s
}

// Controller of the session
func (s *Session) Controller() *Controller {
	return s.controller
}

// Focus schedules a debounced reconciliation
func (s *Session) Focus() {
	s.controller.Notify(TriggerFocus)
}

// Run the session until ctx is done
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info().Str("user", s.cfg.User.Name).Msg("reminder session started")
	defer s.logger.Info().Str("user", s.cfg.User.Name).Msg("reminder session stopped")

	g, ctx := errgroup.WithContext(ctx)

	if s.poller != nil {
		if err := s.poller.Start(ctx); err != nil {
			return err
		}
		defer s.poller.Stop()
	}

	g.Go(func() error {
		return s.controller.Run(ctx)
	})

	g.Go(func() error {
		s.subscribe(ctx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.WakeCheckInterval)
		defer ticker.Stop()

		watchWake(ctx, s.cfg.WakeCheckInterval, ticker.C, time.Now, func(gap time.Duration) {
			s.logger.Info().Dur("gap", gap).Msg("wake detected, reconciling reminders")
			s.controller.Notify(TriggerVisible)
		})

		return nil
	})

	return g.Wait()
}

// subscribe feeds medication changes to the controller until ctx is done. A failing
// subscription is restarted with backoff and only stalls this user's updates; the armed
// timers keep running.
func (s *Session) subscribe(ctx context.Context) {
	newBackOff := s.cfg.NewBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		}
	}

	err := backoff.RetryNotify(func() error {
		err := s.cfg.Store.SubscribeMedicationsForUser(ctx, s.cfg.User.ID, s.controller.UpdateMedications)
		if err == nil && ctx.Err() == nil {
			return errors.New("medication subscription ended")
		}

		return err
	}, backoff.WithContext(newBackOff(), ctx), func(err error, next time.Duration) {
		s.logger.Warn().Err(err).Dur("retry_in", next).Msg("medication subscription failed, restarting")
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("medication subscription gave up, reminders no longer follow medication changes")
	}
}

// watchWake calls onWake when the wall clock moved much further between two ticks than
// the interval, which happens when the host was suspended.
func watchWake(ctx context.Context, interval time.Duration, ticks <-chan time.Time, now func() time.Time, onWake func(gap time.Duration)) {
	// Round(0) drops the monotonic reading, which stops during suspend on some platforms
	last := now().Round(0)

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticks:
			current := now().Round(0)
			if gap := current.Sub(last); gap > 2*interval {
				onWake(gap)
			}

			last = current
		}
	}
}
