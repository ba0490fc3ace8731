package reminder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/schedule/scheduletest"
)

type fakeAPI struct {
	fakeBackup
	countingChecker
}

// failingStore fails the first subscriptions
type failingStore struct {
	*db.Badger
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *failingStore) SubscribeMedicationsForUser(ctx context.Context, userID uuid.UUID, fn func([]*db.Medication)) error {
	if f.calls.Add(1) <= f.failures.Load() {
		return errors.New("value log truncated")
	}

	return f.Badger.SubscribeMedicationsForUser(ctx, userID, fn)
}

func TestSession(t *testing.T) {
	store, err := db.NewBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	user := &db.User{ID: uuid.New(), Name: "pat", Email: "pat@example.com", Plan: db.PlanPremium}
	require.NoError(t, store.AddUser(user))

	first := &db.Medication{IDUser: user.ID, ID: uuid.New(), Name: "Metformin", ReminderTimes: []string{"08:00"}, Active: true, CreatedAt: time.Now()}
	require.NoError(t, store.AddMedication(first))

	api := &fakeAPI{}
	session := NewSession(SessionConfig{
		User:              user,
		Store:             store,
		API:               api,
		Dispatcher:        &recordingDispatcher{},
		Clock:             scheduletest.New(time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)),
		Reporter:          &recordingReporter{},
		PollInterval:      time.Hour,
		WakeCheckInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	slots := func() []SlotKey {
		keys, err := session.Controller().Slots(ctx)
		if err != nil {
			return nil
		}
		return keys
	}

	require.Eventually(t, func() bool { return len(slots()) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return api.countingChecker.count() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		scheduled, _ := api.fakeBackup.counts()
		return scheduled == 1
	}, waitFor, tick)

	// give the subscription time to register before writing
	time.Sleep(100 * time.Millisecond)

	second := &db.Medication{IDUser: user.ID, ID: uuid.New(), Name: "Aspirin", ReminderTimes: []string{"09:00", "21:00"}, Active: true, CreatedAt: time.Now()}
	require.NoError(t, store.AddMedication(second))
	require.Eventually(t, func() bool { return len(slots()) == 3 }, waitFor, tick)

	require.NoError(t, store.RemoveMedication(first))
	require.Eventually(t, func() bool { return len(slots()) == 2 }, waitFor, tick)

	session.Focus()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not stop")
	}
}

func TestSessionRestartsFailedSubscription(t *testing.T) {
	badger, err := db.NewBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { badger.Close() })

	user := &db.User{ID: uuid.New(), Name: "pat", Email: "pat@example.com", Plan: db.PlanPremium}
	require.NoError(t, badger.AddUser(user))
	require.NoError(t, badger.AddMedication(&db.Medication{IDUser: user.ID, ID: uuid.New(), Name: "Metformin", ReminderTimes: []string{"08:00"}, Active: true}))

	store := &failingStore{Badger: badger}
	store.failures.Store(2)

	session := NewSession(SessionConfig{
		User:              user,
		Store:             store,
		Clock:             scheduletest.New(time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)),
		Reporter:          &recordingReporter{},
		WakeCheckInterval: time.Hour,
		NewBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	require.Eventually(t, func() bool {
		keys, err := session.Controller().Slots(ctx)
		return err == nil && len(keys) == 1
	}, waitFor, tick)
	assert.Equal(t, int32(3), store.calls.Load())

	select {
	case err := <-done:
		t.Fatalf("session stopped early: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not stop")
	}
}

func TestWatchWake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan time.Time)
	start := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)
	var elapsed atomic.Int64
	now := func() time.Time { return start.Add(time.Duration(elapsed.Load())) }

	gaps := make(chan time.Duration, 4)
	go watchWake(ctx, time.Minute, ticks, now, func(gap time.Duration) { gaps <- gap })

	// a tick after one interval is not a wake
	ticks <- time.Time{}
	elapsed.Add(int64(time.Minute))
	ticks <- time.Time{}

	elapsed.Add(int64(3 * time.Hour))
	ticks <- time.Time{}

	select {
	case gap := <-gaps:
		assert.GreaterOrEqual(t, gap, 3*time.Hour)
	case <-time.After(waitFor):
		t.Fatal("wake not detected")
	}

	assert.Empty(t, gaps)
}
