package reminder

import (
	"time"

	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/schedule"
)

// Timer for one reminder slot. Each arming gets a new generation so a fire from an
// earlier arming can be recognized and dropped.
type Timer struct {
	Slot       SlotKey
	Medication *db.Medication

	seq        *schedule.Sequence
	generation uint64
	timer      schedule.Timer
}

// Stop the pending callback
func (t *Timer) Stop() bool {
	if t.timer == nil {
		return false
	}

	return t.timer.Stop()
}

// Next fire instant
func (t *Timer) Next() time.Time {
	return t.seq.Last()
}

// At is the clock time of the slot
func (t *Timer) At() schedule.ClockTime {
	return t.seq.At()
}

type fire struct {
	slot       SlotKey
	generation uint64
}

// Scheduler arms slot timers on a clock. The callbacks never touch the registry; they
// hand a fire to post, which the controller loop consumes.
type Scheduler struct {
	clock      schedule.Clock
	registry   *Registry
	post       func(fire)
	generation uint64
}

// NewScheduler registering into registry
func NewScheduler(clock schedule.Clock, registry *Registry, post func(fire)) *Scheduler {
	return &Scheduler{
		clock:    clock,
		registry: registry,
		post:     post,
	}
}

// Arm the index-th reminder time of the medication. Any timer already registered for the
// slot is stopped first.
func (s *Scheduler) Arm(medication *db.Medication, index int, at schedule.ClockTime) *Timer {
	t := &Timer{
		Slot:       Slot(medication.ID.String(), index),
		Medication: medication,
		seq:        schedule.NewSequence(at, nil),
	}

	s.registry.Register(t.Slot, t)
	s.start(t)

	return t
}

// Rearm a fired timer for its next occurrence
func (s *Scheduler) Rearm(t *Timer) {
	s.start(t)
}

func (s *Scheduler) start(t *Timer) {
	now := s.clock.Now()
	next := t.seq.Next(now)

	s.generation++
	t.generation = s.generation

	f := fire{slot: t.Slot, generation: t.generation}
	t.timer = s.clock.AfterFunc(next.Sub(now), func() {
		s.post(f)
	})
}
