package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
)

// ErrNotFound occurs when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrReplaced occurs when a record changed between reading and writing it
var ErrReplaced = errors.New("replaced concurrently")

// Badger db implementation
type Badger struct {
	db       *badger.DB
	cancelGC func()
	wg       sync.WaitGroup
}

// NewBadger creates a new badger instance for the given path
func NewBadger(dbPath string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at path %s: %w", dbPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Badger{
		db:       db,
		cancelGC: cancel,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for b.db.RunValueLogGC(0.5) == nil && ctx.Err() == nil {
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return b, nil
}

// Close the database
func (b *Badger) Close() error {
	b.cancelGC()
	b.wg.Wait()

	return b.db.Close()
}

func getJSON(tx *badger.Txn, key []byte, v interface{}) error {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}

	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(tx *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to JSON marshal value for key %s: %w", string(key), err)
	}

	return tx.Set(key, data)
}

// eachWithPrefix calls fn with every value under prefix
func eachWithPrefix(tx *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := tx.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()

		err := item.Value(func(val []byte) error {
			return fn(item.Key(), val)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func keysWithPrefix(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := tx.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}

	return keys
}

// AddUser to the database
func (b *Badger) AddUser(user *User) error {
	return b.db.Update(func(tx *badger.Txn) error {
		key := user.badgerKey()
		if _, err := tx.Get(key); err == nil {
			return fmt.Errorf("user %s already exists", user.Name)
		}

		if err := setJSON(tx, key, user); err != nil {
			return err
		}

		return tx.Set(badgerKeyForUserID(user.ID), []byte(user.Name))
	})
}

// UpdateUser that already exists in the database
func (b *Badger) UpdateUser(user *User) error {
	return b.db.Update(func(tx *badger.Txn) error {
		key := user.badgerKey()
		if _, err := tx.Get(key); err != nil {
			return fmt.Errorf("failed to get user %s: %w", user.Name, ErrNotFound)
		}

		return setJSON(tx, key, user)
	})
}

// GetUser from the database
func (b *Badger) GetUser(username string) (user *User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		user = &User{}

		if err := getJSON(tx, badgerKeyForUsername(username), user); err != nil {
			return fmt.Errorf("failed to get user value for username %s: %w", username, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return
}

// GetUserByID from the database
func (b *Badger) GetUserByID(id uuid.UUID) (user *User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(badgerKeyForUserID(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to get username for user id %s: %w", id, ErrNotFound)
		}

		if err != nil {
			return fmt.Errorf("failed to get username for user id %s: %w", id, err)
		}

		username, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		user = &User{}

		if err := getJSON(tx, badgerKeyForUsername(string(username)), user); err != nil {
			return fmt.Errorf("failed to get user value for user id %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return
}

// ListUsers from the database
func (b *Badger) ListUsers() (users []*User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		return eachWithPrefix(tx, []byte("user:"), func(key, val []byte) error {
			user := &User{}
			if err := json.Unmarshal(val, user); err != nil {
				return fmt.Errorf("failed to unmarshal user value for user key %s: %w", string(key), err)
			}

			users = append(users, user)

			return nil
		})
	})

	return
}

// AddMedication to the database, replacing any medication with the same ids
func (b *Badger) AddMedication(medication *Medication) error {
	return b.db.Update(func(tx *badger.Txn) error {
		return setJSON(tx, medication.badgerKey(), medication)
	})
}

// GetMedication from the database
func (b *Badger) GetMedication(userID, medicationID uuid.UUID) (medication *Medication, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		medication = &Medication{}

		if err := getJSON(tx, badgerKeyForMedication(userID, medicationID), medication); err != nil {
			return fmt.Errorf("failed to get medication %s: %w", medicationID, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return
}

// RemoveMedication from the database
func (b *Badger) RemoveMedication(medication *Medication) error {
	return b.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(medication.badgerKey())
	})
}

// ListMedicationsForUser from the database
func (b *Badger) ListMedicationsForUser(user *User) ([]*Medication, error) {
	return b.ListMedicationsForUserID(user.ID)
}

// ListMedicationsForUserID from the database, ordered by creation time
func (b *Badger) ListMedicationsForUserID(userID uuid.UUID) (medications []*Medication, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		return eachWithPrefix(tx, badgerPrefixKeyForMedicationUserID(userID), func(key, val []byte) error {
			medication := &Medication{}
			if err := json.Unmarshal(val, medication); err != nil {
				return fmt.Errorf("failed to unmarshal medication value for medication key %x: %w", key, err)
			}

			medications = append(medications, medication)

			return nil
		})
	})

	sort.SliceStable(medications, func(i, j int) bool {
		return medications[i].CreatedAt.Before(medications[j].CreatedAt)
	})

	return
}

// ReplaceScheduledReminders deletes every scheduled reminder of the medication and writes
// the given ones in the same transaction
func (b *Badger) ReplaceScheduledReminders(medicationID string, reminders []*ScheduledReminder) error {
	return b.db.Update(func(tx *badger.Txn) error {
		for _, key := range keysWithPrefix(tx, badgerPrefixKeyForScheduledReminderMedication(medicationID)) {
			if err := tx.Delete(key); err != nil {
				return fmt.Errorf("failed to delete scheduled reminder %s: %w", string(key), err)
			}
		}

		for _, reminder := range reminders {
			if reminder.MedicationID != medicationID {
				return fmt.Errorf("scheduled reminder %s does not belong to medication %s", reminder.ID, medicationID)
			}

			if err := setJSON(tx, reminder.badgerKey(), reminder); err != nil {
				return err
			}
		}

		return nil
	})
}

// DeleteScheduledReminders of a medication, returning how many were removed
func (b *Badger) DeleteScheduledReminders(medicationID string) (deleted int, err error) {
	err = b.db.Update(func(tx *badger.Txn) error {
		for _, key := range keysWithPrefix(tx, badgerPrefixKeyForScheduledReminderMedication(medicationID)) {
			if err := tx.Delete(key); err != nil {
				return fmt.Errorf("failed to delete scheduled reminder %s: %w", string(key), err)
			}

			deleted++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return
}

// ListScheduledRemindersForMedication from the database
func (b *Badger) ListScheduledRemindersForMedication(medicationID string) ([]*ScheduledReminder, error) {
	return b.listScheduledReminders(badgerPrefixKeyForScheduledReminderMedication(medicationID), nil)
}

// ListDueScheduledReminders are active and scheduled at or before now, earliest first
func (b *Badger) ListDueScheduledReminders(now time.Time) ([]*ScheduledReminder, error) {
	reminders, err := b.listScheduledReminders([]byte(scheduledReminderPrefix), func(r *ScheduledReminder) bool {
		return r.Active && !r.NextScheduled.After(now)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].NextScheduled.Before(reminders[j].NextScheduled)
	})

	return reminders, nil
}

func (b *Badger) listScheduledReminders(prefix []byte, keep func(*ScheduledReminder) bool) (reminders []*ScheduledReminder, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		return eachWithPrefix(tx, prefix, func(key, val []byte) error {
			reminder := &ScheduledReminder{}
			if err := json.Unmarshal(val, reminder); err != nil {
				return fmt.Errorf("failed to unmarshal scheduled reminder for key %s: %w", string(key), err)
			}

			if keep == nil || keep(reminder) {
				reminders = append(reminders, reminder)
			}

			return nil
		})
	})

	return
}

// AdvanceScheduledReminder records a delivery of the reminder as it was read and moves it
// to next. ErrNotFound when it was cancelled since, ErrReplaced when it was rescheduled or
// advanced by someone else; the stored record is left untouched in both cases.
func (b *Badger) AdvanceScheduledReminder(read *ScheduledReminder, sent, next time.Time) error {
	return b.db.Update(func(tx *badger.Txn) error {
		key := read.badgerKey()

		stored := &ScheduledReminder{}
		if err := getJSON(tx, key, stored); err != nil {
			return fmt.Errorf("failed to advance scheduled reminder %s: %w", read.ID, err)
		}

		if !stored.CreatedAt.Equal(read.CreatedAt) || !stored.NextScheduled.Equal(read.NextScheduled) {
			return fmt.Errorf("failed to advance scheduled reminder %s: %w", read.ID, ErrReplaced)
		}

		stored.LastSent = &sent
		stored.NextScheduled = next

		return setJSON(tx, key, stored)
	})
}
