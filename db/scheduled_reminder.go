package db

import (
	"strings"
	"time"
)

// ScheduledReminder is the server-held mirror of one medication reminder time
type ScheduledReminder struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	MedicationID   string     `json:"medication_id"`
	MedicationName string     `json:"medication_name"`
	Dosage         string     `json:"dosage"`
	Time           string     `json:"time"`
	Hours          int        `json:"hours"`
	Minutes        int        `json:"minutes"`
	Timezone       string     `json:"timezone,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastSent       *time.Time `json:"last_sent"`
	NextScheduled  time.Time  `json:"next_scheduled"`
}

// ScheduledReminderID for a medication and compact HHMM time
func ScheduledReminderID(medicationID, compactTime string) string {
	return medicationID + "_" + strings.ReplaceAll(compactTime, ":", "")
}

func (r *ScheduledReminder) badgerKey() []byte {
	return badgerKeyForScheduledReminder(r.ID)
}

func badgerKeyForScheduledReminder(id string) []byte {
	return append([]byte(scheduledReminderPrefix), []byte(id)...)
}

func badgerPrefixKeyForScheduledReminderMedication(medicationID string) []byte {
	return append([]byte(scheduledReminderPrefix), []byte(medicationID+"_")...)
}

const scheduledReminderPrefix = "scheduled_reminder:"
