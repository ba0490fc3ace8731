package reminder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/medibot/backup"
	"git.0xdad.com/tblyler/medibot/client"
	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/log"
	"git.0xdad.com/tblyler/medibot/metrics"
	"git.0xdad.com/tblyler/medibot/notify"
	"git.0xdad.com/tblyler/medibot/schedule"
)

// Trigger for a full reconciliation
type Trigger int

const (
	// TriggerVisible fires after the host wakes up
	TriggerVisible Trigger = iota + 1
	// TriggerFocus is debounced by the focus delay
	TriggerFocus
)

func (t Trigger) String() string {
	switch t {
	case TriggerVisible:
		return "visible"
	case TriggerFocus:
		return "focus"
	default:
		return "unknown"
	}
}

// DefaultFocusDelay lets a medication list update land before a focus reconciliation
const DefaultFocusDelay = time.Second

// Dispatcher delivers notifications
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.Result
}

// Backup is the server-side copy of the reminder schedule
type Backup interface {
	ScheduleReminders(ctx context.Context, req backup.ScheduleRequest) error
	CancelReminders(ctx context.Context, medicationID string) error
}

// UserStore reads the user profile
type UserStore interface {
	GetUserByID(id uuid.UUID) (*db.User, error)
}

// ControllerConfig for NewController
type ControllerConfig struct {
	User       *db.User
	Users      UserStore
	Clock      schedule.Clock
	Dispatcher Dispatcher
	Backup     Backup
	Reporter   Reporter
	Metrics    *metrics.Metrics
	FocusDelay time.Duration
	// NewBackOff for server backup syncs; exponential when nil
	NewBackOff func() backoff.BackOff
}

// Controller owns a user's registry and keeps it consistent with their medication list.
// All registry work happens on the Run goroutine.
type Controller struct {
	cfg       ControllerConfig
	user      *db.User
	registry  *Registry
	scheduler *Scheduler
	logger    zerolog.Logger

	pendingMu  sync.Mutex
	pending    []*db.Medication
	hasPending bool
	medsReady  chan struct{}

	triggers   chan Trigger
	fires      chan fire
	focusFired chan uint64
	queries    chan func()
	done       chan struct{}

	ctx         context.Context
	wg          sync.WaitGroup
	syncMu      sync.Mutex
	syncs       map[string]*medicationSync
	medications []*db.Medication
	synced      map[string]backup.ScheduleRequest
	focusTimer  schedule.Timer
	focusGen    uint64
	gateShown   bool
}

// NewController for the configured user
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = schedule.SystemClock{}
	}

	if cfg.FocusDelay <= 0 {
		cfg.FocusDelay = DefaultFocusDelay
	}

	if cfg.Reporter == nil {
		cfg.Reporter = NewLogReporter(cfg.User.ID.String())
	}

	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			return b
		}
	}

	c := &Controller{
		cfg:        cfg,
		user:       cfg.User,
		registry:   NewRegistry(),
		logger:     log.WithUserID("reminder", cfg.User.ID.String()),
		medsReady:  make(chan struct{}, 1),
		triggers:   make(chan Trigger, 16),
		fires:      make(chan fire),
		focusFired: make(chan uint64),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		synced:     make(map[string]backup.ScheduleRequest),
		syncs:      make(map[string]*medicationSync),
	}

	c.scheduler = NewScheduler(cfg.Clock, c.registry, func(f fire) {
		select {
		case c.fires <- f:
		case <-c.done:
		}
	})

	return c
}

// UpdateMedications hands the latest medication list to the controller. Only the most
// recent list not yet consumed is kept.
func (c *Controller) UpdateMedications(medications []*db.Medication) {
	c.pendingMu.Lock()
	c.pending = medications
	c.hasPending = true
	c.pendingMu.Unlock()

	select {
	case c.medsReady <- struct{}{}:
	default:
	}
}

// Notify the controller of a lifecycle trigger
func (c *Controller) Notify(trigger Trigger) {
	select {
	case c.triggers <- trigger:
	default:
		c.logger.Debug().Stringer("trigger", trigger).Msg("trigger queue full, dropping")
	}
}

// Slots that currently have an armed timer
func (c *Controller) Slots(ctx context.Context) ([]SlotKey, error) {
	var keys []SlotKey
	err := c.query(ctx, func() {
		keys = c.registry.Keys()
	})

	return keys, err
}

// NextFire of a slot, zero when the slot has no timer
func (c *Controller) NextFire(ctx context.Context, slot SlotKey) (time.Time, error) {
	var next time.Time
	err := c.query(ctx, func() {
		if t, ok := c.registry.Get(slot); ok {
			next = t.Next()
		}
	})

	return next, err
}

func (c *Controller) query(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case c.queries <- func() { fn(); close(ran) }:
	case <-c.done:
		return errors.New("controller stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	<-ran

	return nil
}

// Run the controller loop until ctx is done. Every timer is cancelled on return.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx

	defer func() {
		if c.focusTimer != nil {
			c.focusTimer.Stop()
		}

		cancelled := c.registry.CancelEverything()
		c.cfg.Metrics.DeleteArmedTimers(c.user.ID.String())
		close(c.done)
		c.wg.Wait()

		c.logger.Debug().Int("cancelled", cancelled).Msg("reminder controller stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-c.medsReady:
			c.pendingMu.Lock()
			medications, ok := c.pending, c.hasPending
			c.pending, c.hasPending = nil, false
			c.pendingMu.Unlock()

			if !ok {
				continue
			}

			c.medications = medications
			c.reconcile("medications")
			c.syncBackup()

		case trigger := <-c.triggers:
			switch trigger {
			case TriggerFocus:
				c.debounceFocus()
			default:
				c.reconcile(trigger.String())
			}

		case gen := <-c.focusFired:
			if gen == c.focusGen {
				c.focusTimer = nil
				c.reconcile(TriggerFocus.String())
			}

		case f := <-c.fires:
			c.fire(f)

		case fn := <-c.queries:
			fn()
		}
	}
}

func (c *Controller) debounceFocus() {
	if c.focusTimer != nil {
		c.focusTimer.Stop()
	}

	c.focusGen++
	gen := c.focusGen
	c.focusTimer = c.cfg.Clock.AfterFunc(c.cfg.FocusDelay, func() {
		select {
		case c.focusFired <- gen:
		case <-c.done:
		}
	})
}

func (c *Controller) refreshUser() {
	if c.cfg.Users == nil {
		return
	}

	user, err := c.cfg.Users.GetUserByID(c.user.ID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to refresh user profile")
		return
	}

	c.user = user
}

func (c *Controller) reconcile(reason string) {
	c.cfg.Metrics.ObserveReconcile(reason)
	c.refreshUser()

	if !c.user.RemindersEnabled() {
		c.registry.CancelEverything()
		c.cfg.Metrics.SetArmedTimers(c.user.ID.String(), 0)

		if !c.gateShown && hasReminders(c.medications) {
			c.gateShown = true
			c.cfg.Reporter.Report(zerolog.ErrorLevel, "Medication reminders are a premium feature")
		}

		return
	}

	active := make(map[string]struct{})
	for _, medication := range c.medications {
		if medication.HasReminders() {
			active[medication.ID.String()] = struct{}{}
		}
	}

	for _, id := range c.registry.MedicationIDs() {
		if _, ok := active[id]; !ok {
			c.registry.CancelAll(id)
		}
	}

	for _, medication := range c.medications {
		if !medication.HasReminders() {
			continue
		}

		c.registry.CancelAll(medication.ID.String())

		for index, value := range medication.ReminderTimes {
			at, err := schedule.ParseClockTime(value)
			if err != nil {
				c.logger.Warn().Err(err).Str("medication_id", medication.ID.String()).Int("slot", index).Msg("skipping invalid reminder time")
				continue
			}

			t := c.scheduler.Arm(medication, index, at)
			c.logger.Debug().Stringer("slot", t.Slot).Time("next", t.Next()).Str("medication", medication.Name).Msg("reminder armed")
		}
	}

	c.cfg.Metrics.SetArmedTimers(c.user.ID.String(), c.registry.Len())
	c.logger.Debug().Str("reason", reason).Int("armed", c.registry.Len()).Msg("reminders reconciled")
}

func hasReminders(medications []*db.Medication) bool {
	for _, medication := range medications {
		if medication.HasReminders() {
			return true
		}
	}

	return false
}

func (c *Controller) fire(f fire) {
	t, ok := c.registry.Get(f.slot)
	if !ok || t.generation != f.generation {
		c.logger.Debug().Stringer("slot", f.slot).Msg("dropping stale reminder fire")
		return
	}

	c.cfg.Metrics.ObserveTimerFire()

	c.scheduler.Rearm(t)

	n := notify.Reminder(c.user.ID.String(), c.user.Email, t.Medication.Name, t.Medication.Dosage)
	name := t.Medication.Name

	c.logger.Info().Stringer("slot", t.Slot).Time("next", t.Next()).Str("medication", name).Msg("reminder fired")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Interface("panic", r).Str("medication", name).Msg("reminder dispatch panicked")
			}
		}()

		if c.cfg.Dispatcher == nil {
			return
		}

		result := c.cfg.Dispatcher.Dispatch(c.ctx, n)
		switch {
		case result.OK():
		case result.Partial():
			c.cfg.Reporter.Report(zerolog.WarnLevel, fmt.Sprintf("Reminder for %s only partly delivered: %v", name, result.Err()))
		default:
			c.cfg.Reporter.Report(zerolog.ErrorLevel, fmt.Sprintf("Failed to send reminder for %s: %v", name, result.Err()))
		}
	}()
}

func (c *Controller) syncBackup() {
	if c.cfg.Backup == nil || !c.user.RemindersEnabled() {
		return
	}

	active := make(map[string]struct{})
	for _, medication := range c.medications {
		if !medication.HasReminders() {
			continue
		}

		id := medication.ID.String()
		active[id] = struct{}{}

		req := backup.ScheduleRequest{
			UserID:         c.user.ID.String(),
			MedicationID:   id,
			ReminderTimes:  medication.ReminderTimes,
			MedicationName: medication.Name,
			Dosage:         medication.Dosage,
			Timezone:       localZone(),
		}

		if prior, ok := c.synced[id]; ok && reflect.DeepEqual(prior, req) {
			continue
		}

		c.synced[id] = req
		c.enqueueSync(id, func(retry context.Context) {
			c.schedule(retry, req)
		})
	}

	for id := range c.synced {
		id := id
		if _, ok := active[id]; ok {
			continue
		}

		delete(c.synced, id)
		c.enqueueSync(id, func(retry context.Context) {
			err := c.retry(retry, func(ctx context.Context) error { return c.cfg.Backup.CancelReminders(ctx, id) })
			if err != nil && retry.Err() == nil {
				c.logger.Warn().Err(err).Str("medication_id", id).Msg("failed to cancel server reminders")
			}
		})
	}
}

func (c *Controller) schedule(retry context.Context, req backup.ScheduleRequest) {
	err := c.retry(retry, func(ctx context.Context) error { return c.cfg.Backup.ScheduleReminders(ctx, req) })
	if err != nil {
		if retry.Err() != nil {
			return
		}

		c.logger.Warn().Err(err).Str("medication_id", req.MedicationID).Msg("failed to schedule server backup")
		c.cfg.Reporter.Report(zerolog.WarnLevel, "Reminders scheduled locally only for "+req.MedicationName)

		return
	}

	c.cfg.Reporter.Report(zerolog.InfoLevel, "Reminders scheduled for "+req.MedicationName)
}

// medicationSync is the server backup queue of one medication
type medicationSync struct {
	pending func(retry context.Context)
	stop    context.CancelFunc
}

// enqueueSync runs op after every earlier request for the medication finished. A newer op
// replaces one still waiting and stops the running one from retrying, so the server ends
// up with the latest request.
func (c *Controller) enqueueSync(medicationID string, op func(retry context.Context)) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	if s, ok := c.syncs[medicationID]; ok {
		s.pending = op
		if s.stop != nil {
			s.stop()
		}

		return
	}

	s := &medicationSync{pending: op}
	c.syncs[medicationID] = s

	c.wg.Add(1)
	go c.drainSync(medicationID, s)
}

func (c *Controller) drainSync(medicationID string, s *medicationSync) {
	defer c.wg.Done()

	for {
		c.syncMu.Lock()
		op := s.pending
		if op == nil {
			delete(c.syncs, medicationID)
			c.syncMu.Unlock()
			return
		}

		retry, stop := context.WithCancel(c.ctx)
		s.pending, s.stop = nil, stop
		c.syncMu.Unlock()

		op(retry)
		stop()
	}
}

// retry op until it succeeds, fails permanently or the retry context is done. Every attempt
// runs with the controller context, so an attempt already sent is never cut short.
func (c *Controller) retry(retry context.Context, op func(ctx context.Context) error) error {
	return backoff.Retry(func() error {
		err := op(c.ctx)

		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(c.cfg.NewBackOff(), retry))
}

// localZone is the IANA name of the process timezone, empty when only "Local" is known
func localZone() string {
	name := os.Getenv("TZ")
	if name == "" {
		return ""
	}

	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}

	return name
}
