package db

import (
	"time"

	"github.com/google/uuid"
)

// Medication information for a user
type Medication struct {
	IDUser        uuid.UUID  `json:"id_user"`
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Dosage        string     `json:"dosage"`
	Frequency     string     `json:"frequency"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Notes         string     `json:"notes"`
	ReminderTimes []string   `json:"reminder_times"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasReminders reports whether the medication is active and has at least one reminder time
func (m *Medication) HasReminders() bool {
	return m.Active && len(m.ReminderTimes) > 0
}

func (m *Medication) badgerKey() []byte {
	return badgerKeyForMedication(m.IDUser, m.ID)
}

func badgerKeyForMedication(userID, medicationID uuid.UUID) []byte {
	return append(append([]byte("medication:"), userID[:]...), medicationID[:]...)
}

func badgerPrefixKeyForMedicationUserID(userID uuid.UUID) []byte {
	return append([]byte("medication:"), userID[:]...)
}
