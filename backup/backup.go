// Package backup keeps the server-held copy of every medication's reminder times and
// delivers the reminders that come due.
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/log"
	"git.0xdad.com/tblyler/medibot/metrics"
	"git.0xdad.com/tblyler/medibot/notify"
	"git.0xdad.com/tblyler/medibot/schedule"
)

var (
	// ErrMissingFields occurs when a request lacks a required field
	ErrMissingFields = errors.New("missing required fields")
	// ErrNoValidTimes occurs when none of the requested reminder times parse
	ErrNoValidTimes = errors.New("no valid reminder times provided")
	// ErrInvalidTimezone occurs when the requested timezone is unknown
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// Store of scheduled reminders and their owners
type Store interface {
	ReplaceScheduledReminders(medicationID string, reminders []*db.ScheduledReminder) error
	DeleteScheduledReminders(medicationID string) (int, error)
	ListDueScheduledReminders(now time.Time) ([]*db.ScheduledReminder, error)
	AdvanceScheduledReminder(read *db.ScheduledReminder, sent, next time.Time) error
	GetUserByID(id uuid.UUID) (*db.User, error)
}

// Dispatcher delivers notifications
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.Result
}

// ScheduleRequest replaces the reminder times of one medication
type ScheduleRequest struct {
	UserID         string   `json:"userId"`
	MedicationID   string   `json:"medicationId"`
	ReminderTimes  []string `json:"reminderTimes"`
	MedicationName string   `json:"medicationName"`
	Dosage         string   `json:"dosage"`
	Timezone       string   `json:"timezone,omitempty"`
}

// Service for the server-side reminder schedule
type Service struct {
	store      Store
	dispatcher Dispatcher
	clock      schedule.Clock
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	// serializes ProcessDue so a due reminder is only sent once per pass
	processing sync.Mutex
}

// NewService for the store, delivering due reminders through dispatcher
func NewService(store Store, dispatcher Dispatcher, clock schedule.Clock, m *metrics.Metrics) *Service {
	if clock == nil {
		clock = schedule.SystemClock{}
	}

	return &Service{
		store:      store,
		dispatcher: dispatcher,
		clock:      clock,
		metrics:    m,
		logger:     log.WithComponent("backup"),
	}
}

func location(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidTimezone)
	}

	return loc, nil
}

// Schedule replaces every scheduled reminder of the medication with one per valid time.
// Invalid times are dropped; duplicates collapse into one reminder.
func (s *Service) Schedule(_ context.Context, req ScheduleRequest) ([]*db.ScheduledReminder, error) {
	if req.UserID == "" || req.MedicationID == "" || len(req.ReminderTimes) == 0 {
		return nil, ErrMissingFields
	}

	times := schedule.ValidClockTimes(req.ReminderTimes)
	if len(times) == 0 {
		return nil, ErrNoValidTimes
	}

	loc, err := location(req.Timezone)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	reminders := make([]*db.ScheduledReminder, 0, len(times))
	for _, ct := range times {
		reminders = append(reminders, &db.ScheduledReminder{
			ID:             db.ScheduledReminderID(req.MedicationID, ct.Compact()),
			UserID:         req.UserID,
			MedicationID:   req.MedicationID,
			MedicationName: req.MedicationName,
			Dosage:         req.Dosage,
			Time:           ct.String(),
			Hours:          ct.Hour,
			Minutes:        ct.Minute,
			Timezone:       req.Timezone,
			Active:         true,
			CreatedAt:      now,
			NextScheduled:  schedule.NextIn(ct, now, loc),
		})
	}

	if err := s.store.ReplaceScheduledReminders(req.MedicationID, reminders); err != nil {
		return nil, fmt.Errorf("failed to schedule reminders for medication %s: %w", req.MedicationID, err)
	}

	s.logger.Info().
		Str("medication_id", req.MedicationID).
		Str("user_id", req.UserID).
		Int("reminders", len(reminders)).
		Msg("reminders scheduled")

	return reminders, nil
}

// Cancel every scheduled reminder of the medication
func (s *Service) Cancel(_ context.Context, medicationID string) (int, error) {
	if medicationID == "" {
		return 0, ErrMissingFields
	}

	deleted, err := s.store.DeleteScheduledReminders(medicationID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reminders for medication %s: %w", medicationID, err)
	}

	s.logger.Info().Str("medication_id", medicationID).Int("reminders", deleted).Msg("reminders cancelled")

	return deleted, nil
}

// ProcessDue delivers every active reminder scheduled at or before now and moves it to its
// next occurrence. A reminder that fails is logged and skipped. It returns how many
// reminders were processed.
func (s *Service) ProcessDue(ctx context.Context) (int, error) {
	s.processing.Lock()
	defer s.processing.Unlock()

	now := s.clock.Now()

	due, err := s.store.ListDueScheduledReminders(now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	processed := 0
	for _, reminder := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		err := s.process(ctx, reminder, now)
		s.metrics.ObserveDueProcessed(err)
		if err != nil {
			s.logger.Error().Err(err).Str("reminder_id", reminder.ID).Msg("failed to process due reminder")
			continue
		}

		processed++
	}

	if processed > 0 {
		s.logger.Info().Int("processed", processed).Msg("due reminders processed")
	}

	return processed, nil
}

func (s *Service) process(ctx context.Context, reminder *db.ScheduledReminder, now time.Time) error {
	loc, err := location(reminder.Timezone)
	if err != nil {
		return err
	}

	user, err := s.owner(reminder)
	if err != nil {
		s.logger.Warn().Err(err).Str("reminder_id", reminder.ID).Str("user_id", reminder.UserID).Msg("owner of due reminder not found")
	} else {
		result := s.dispatcher.Dispatch(ctx, notify.Reminder(reminder.UserID, user.Email, reminder.MedicationName, reminder.Dosage))
		if !result.OK() {
			s.logger.Warn().Err(result.Err()).Str("reminder_id", reminder.ID).Msg("due reminder not fully delivered")
		}
	}

	from := now
	if reminder.NextScheduled.After(from) {
		from = reminder.NextScheduled
	}

	next := schedule.NextIn(schedule.ClockTime{Hour: reminder.Hours, Minute: reminder.Minutes}, from, loc)

	err = s.store.AdvanceScheduledReminder(reminder, now, next)
	if errors.Is(err, db.ErrReplaced) || errors.Is(err, db.ErrNotFound) {
		s.logger.Debug().Err(err).Str("reminder_id", reminder.ID).Msg("due reminder changed while sending, keeping the new schedule")
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to advance reminder: %w", err)
	}

	return nil
}

func (s *Service) owner(reminder *db.ScheduledReminder) (*db.User, error) {
	id, err := uuid.Parse(reminder.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", reminder.UserID, err)
	}

	return s.store.GetUserByID(id)
}
