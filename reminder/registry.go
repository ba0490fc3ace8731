// Package reminder keeps a user's local reminder timers in step with their medications.
package reminder

import (
	"sort"
	"strconv"
)

// SlotKey identifies one reminder time of one medication
type SlotKey struct {
	MedicationID string
	Index        int
}

// Slot key for the index-th reminder time of a medication
func Slot(medicationID string, index int) SlotKey {
	return SlotKey{MedicationID: medicationID, Index: index}
}

func (k SlotKey) String() string {
	return k.MedicationID + "-" + strconv.Itoa(k.Index)
}

// Registry of armed timers by slot. It is not safe for concurrent use; the controller
// loop owns it.
type Registry struct {
	timers map[SlotKey]*Timer
}

// NewRegistry that is empty
func NewRegistry() *Registry {
	return &Registry{timers: make(map[SlotKey]*Timer)}
}

// Register the timer for key, stopping any timer already registered for it
func (r *Registry) Register(key SlotKey, timer *Timer) {
	if prior, ok := r.timers[key]; ok && prior != timer {
		prior.Stop()
	}

	r.timers[key] = timer
}

// Get the timer registered for key
func (r *Registry) Get(key SlotKey) (*Timer, bool) {
	timer, ok := r.timers[key]
	return timer, ok
}

// CancelAll timers of a medication, returning how many were stopped
func (r *Registry) CancelAll(medicationID string) int {
	cancelled := 0
	for key, timer := range r.timers {
		if key.MedicationID != medicationID {
			continue
		}

		timer.Stop()
		delete(r.timers, key)
		cancelled++
	}

	return cancelled
}

// CancelEverything that is registered
func (r *Registry) CancelEverything() int {
	cancelled := len(r.timers)
	for key, timer := range r.timers {
		timer.Stop()
		delete(r.timers, key)
	}

	return cancelled
}

// Len of the registry
func (r *Registry) Len() int {
	return len(r.timers)
}

// Keys in medication then index order
func (r *Registry) Keys() []SlotKey {
	keys := make([]SlotKey, 0, len(r.timers))
	for key := range r.timers {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].MedicationID != keys[j].MedicationID {
			return keys[i].MedicationID < keys[j].MedicationID
		}

		return keys[i].Index < keys[j].Index
	})

	return keys
}

// MedicationIDs with at least one registered timer
func (r *Registry) MedicationIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for key := range r.timers {
		if _, ok := seen[key.MedicationID]; ok {
			continue
		}

		seen[key.MedicationID] = struct{}{}
		ids = append(ids, key.MedicationID)
	}

	sort.Strings(ids)

	return ids
}
