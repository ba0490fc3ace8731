package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"git.0xdad.com/tblyler/medibot/api"
	"git.0xdad.com/tblyler/medibot/backup"
	"git.0xdad.com/tblyler/medibot/client"
	"git.0xdad.com/tblyler/medibot/config"
	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/log"
	"git.0xdad.com/tblyler/medibot/metrics"
	"git.0xdad.com/tblyler/medibot/notify"
	"git.0xdad.com/tblyler/medibot/reminder"
	"git.0xdad.com/tblyler/medibot/schedule"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the API and run reminder sessions for every user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx)
	},
}

func pushSender() notify.PushSender {
	token, err := env.PushoverAPIToken()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("push notifications disabled")
		return nil
	}

	return notify.NewPushoverSender(token)
}

func emailSender(m *metrics.Metrics) notify.EmailSender {
	cfg := env.Email()

	var primary, fallback notify.EmailProvider

	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	}); sender != nil {
		primary = sender
	}

	if sender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.FromEmail,
		FromName: cfg.FromName,
	}); sender != nil {
		fallback = sender
	}

	if primary == nil && fallback == nil {
		log.Logger.Warn().Msg("email notifications disabled")
		return nil
	}

	return notify.NewFallbackSender(primary, fallback, m)
}

// serverDispatcher delivers through the providers directly
func serverDispatcher(b *db.Badger, m *metrics.Metrics) *notify.Dispatcher {
	return notify.NewDispatcher(notify.UserTokens{Users: b}, pushSender(), emailSender(m), m)
}

func run(ctx context.Context) error {
	b, err := openBadger()
	if err != nil {
		return err
	}
	defer b.Close()

	m := metrics.New(nil)
	logger := log.WithComponent("run")

	push := pushSender()
	email := emailSender(m)
	dispatcher := notify.NewDispatcher(notify.UserTokens{Users: b}, push, email, m)
	backups := backup.NewService(b, dispatcher, schedule.SystemClock{}, m)

	server := api.NewServer(api.Config{
		Store:      b,
		Backup:     backups,
		Dispatcher: dispatcher,
		Push:       push,
		Email:      email,
		Metrics:    m,
	})

	httpServer := &http.Server{
		Addr:              env.ListenAddr(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	reminders := env.Reminder()

	dueCron, err := startDueCheck(ctx, backups, reminders)
	if err != nil {
		return err
	}
	if dueCron != nil {
		defer func() { <-dueCron.Stop().Done() }()
	}

	users, err := b.ListUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	apiClient := client.New(env.APIBaseURL())
	// sessions deliver through the API like any other client would
	sessionDispatcher := notify.NewDispatcher(notify.UserTokens{Users: b}, apiClient, apiClient, m)

	// users are only added by the CLI, which cannot open the database while run holds it
	sessions := make([]*reminder.Session, 0, len(users))
	for _, user := range users {
		sessions = append(sessions, reminder.NewSession(reminder.SessionConfig{
			User:              user,
			Store:             b,
			API:               apiClient,
			Dispatcher:        sessionDispatcher,
			Clock:             schedule.SystemClock{},
			Reporter:          reminder.NewLogReporter(user.ID.String()),
			Metrics:           m,
			PollInterval:      reminders.PollInterval,
			FocusDelay:        reminders.FocusDelay,
			WakeCheckInterval: reminders.WakeCheckInterval,
		}))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("api listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		server.Wait()

		return err
	})

	for _, session := range sessions {
		session := session
		g.Go(func() error {
			return session.Run(ctx)
		})
	}

	g.Go(func() error {
		focusOnHangup(ctx, sessions)
		return nil
	})

	logger.Info().Int("sessions", len(sessions)).Msg("medibot running")

	return g.Wait()
}

func startDueCheck(ctx context.Context, backups *backup.Service, reminders config.Reminder) (*cron.Cron, error) {
	if reminders.DueCheckSchedule == "" {
		return nil, nil
	}

	logger := log.WithComponent("due")
	c := cron.New(cron.WithLogger(log.CronLogger{Logger: logger}), cron.WithChain(cron.SkipIfStillRunning(log.CronLogger{Logger: logger})))

	_, err := c.AddFunc(reminders.DueCheckSchedule, func() {
		if _, err := backups.ProcessDue(ctx); err != nil {
			logger.Error().Err(err).Msg("due reminder check failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid due check schedule %q: %w", reminders.DueCheckSchedule, err)
	}

	c.Start()

	return c, nil
}

// focusOnHangup treats SIGHUP as the user returning to the app
func focusOnHangup(ctx context.Context, sessions []*reminder.Session) {
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			for _, session := range sessions {
				session.Focus()
			}
		}
	}
}
