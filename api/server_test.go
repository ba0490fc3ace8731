package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.0xdad.com/tblyler/medibot/backup"
	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/notify"
	"git.0xdad.com/tblyler/medibot/schedule/scheduletest"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	result notify.Result
	sent   []notify.Notification
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n notify.Notification) notify.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)

	return d.result
}

func (d *recordingDispatcher) kinds() []notify.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()

	kinds := make([]notify.Kind, 0, len(d.sent))
	for _, n := range d.sent {
		kinds = append(kinds, n.Kind)
	}

	return kinds
}

type fakeProvider struct {
	name string
	err  error
	sent []notify.EmailMessage
}

func (f *fakeProvider) Name() string {
	return f.name
}

func (f *fakeProvider) SendEmail(_ context.Context, msg notify.EmailMessage) (*notify.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.sent = append(f.sent, msg)

	return &notify.Receipt{ID: "msg-1"}, nil
}

type fakePush struct {
	err  error
	sent []notify.PushMessage
}

func (f *fakePush) SendPush(_ context.Context, msg notify.PushMessage) error {
	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, msg)

	return nil
}

type fixture struct {
	store      *db.Badger
	clock      *scheduletest.Clock
	dispatcher *recordingDispatcher
	primary    *fakeProvider
	fallback   *fakeProvider
	push       *fakePush
	server     *Server
	handler    http.Handler
	user       *db.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := db.NewBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	user := &db.User{ID: uuid.New(), Name: "pat", Email: "pat@example.com", Plan: db.PlanPremium}
	require.NoError(t, store.AddUser(user))

	f := &fixture{
		store:      store,
		clock:      scheduletest.New(time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)),
		dispatcher: &recordingDispatcher{},
		primary:    &fakeProvider{name: "SendGrid"},
		fallback:   &fakeProvider{name: "SMTP"},
		push:       &fakePush{},
		user:       user,
	}

	f.server = NewServer(Config{
		Store:      store,
		Backup:     backup.NewService(store, f.dispatcher, f.clock, nil),
		Dispatcher: f.dispatcher,
		Push:       f.push,
		Email:      notify.NewFallbackSender(f.primary, f.fallback, nil),
	})
	f.handler = f.server.Routes()

	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reader).Encode(body))
	}

	req := httptest.NewRequest(method, path, &reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())

	return rec.Code, payload
}

func (f *fixture) medicationsPath() string {
	return "/api/users/" + f.user.ID.String() + "/medications"
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestScheduleReminderWithoutValidTimesWritesNothing(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/schedule-reminder", backup.ScheduleRequest{
		UserID:        f.user.ID.String(),
		MedicationID:  "med-1",
		ReminderTimes: []string{"25:00", "abc", "12:60"},
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No valid reminder times provided", body["error"])

	reminders, err := f.store.ListScheduledRemindersForMedication("med-1")
	require.NoError(t, err)
	assert.Empty(t, reminders)
}

func TestScheduleReminderMissingFields(t *testing.T) {
	f := newFixture(t)

	for name, req := range map[string]backup.ScheduleRequest{
		"no user":       {MedicationID: "med-1", ReminderTimes: []string{"08:00"}},
		"no medication": {UserID: f.user.ID.String(), ReminderTimes: []string{"08:00"}},
		"no times":      {UserID: f.user.ID.String(), MedicationID: "med-1"},
	} {
		t.Run(name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPost, "/api/schedule-reminder", req)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "Missing required fields", body["error"])
		})
	}
}

func TestScheduleAndCancelReminders(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/schedule-reminder", backup.ScheduleRequest{
		UserID:        f.user.ID.String(),
		MedicationID:  "med-1",
		ReminderTimes: []string{"08:00", "8:00", "20:30", "nope"},
		Timezone:      "UTC",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Reminders scheduled successfully", body["message"])
	assert.EqualValues(t, 2, body["scheduled"])

	reminders, err := f.store.ListScheduledRemindersForMedication("med-1")
	require.NoError(t, err)
	assert.Len(t, reminders, 2)

	status, body = f.do(t, http.MethodDelete, "/api/schedule-reminder?medicationId=med-1", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Reminders cancelled successfully", body["message"])
	assert.EqualValues(t, 2, body["cancelled"])

	reminders, err = f.store.ListScheduledRemindersForMedication("med-1")
	require.NoError(t, err)
	assert.Empty(t, reminders)
}

func TestCancelReminderFromBody(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodDelete, "/api/schedule-reminder", map[string]string{"medicationId": "med-1"})
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["cancelled"])
}

func TestCancelReminderRequiresMedicationID(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodDelete, "/api/schedule-reminder", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Medication ID required", body["error"])
}

func TestCheckReminders(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/schedule-reminder", backup.ScheduleRequest{
		UserID:         f.user.ID.String(),
		MedicationID:   "med-1",
		MedicationName: "Aspirin",
		Dosage:         "100mg",
		ReminderTimes:  []string{"14:05"},
		Timezone:       "UTC",
	})
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(t, http.MethodGet, "/api/check-reminders", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["processed"])

	f.clock.Advance(10 * time.Minute)

	status, body = f.do(t, http.MethodGet, "/api/check-reminders", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["processed"])
	assert.Equal(t, []notify.Kind{notify.KindReminder}, f.dispatcher.kinds())
}

func TestSendEmail(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/send-email", map[string]string{
		"to":      "pat@example.com",
		"subject": "Hello",
		"message": "Take your pills",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Email sent successfully", body["message"])
	require.Len(t, f.primary.sent, 1)
	assert.Contains(t, f.primary.sent[0].HTML, "Take your pills")
}

func TestSendEmailFallback(t *testing.T) {
	f := newFixture(t)
	f.primary.err = errors.New("quota exceeded")

	status, body := f.do(t, http.MethodPost, "/api/send-email", map[string]string{
		"to":      "pat@example.com",
		"subject": "Hello",
		"message": "Take your pills",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Email sent successfully via SMTP (fallback)", body["message"])
	assert.Len(t, f.fallback.sent, 1)
}

func TestSendEmailBothFailed(t *testing.T) {
	f := newFixture(t)
	f.primary.err = errors.New("quota exceeded")
	f.fallback.err = errors.New("connection refused")

	status, body := f.do(t, http.MethodPost, "/api/send-email", map[string]string{
		"to":      "pat@example.com",
		"subject": "Hello",
		"message": "Take your pills",
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "Both email services failed")
}

func TestSendEmailValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]string
		message string
	}{
		{
			name:    "missing subject",
			body:    map[string]string{"to": "pat@example.com", "message": "hi"},
			message: "Missing required fields",
		},
		{
			name:    "invalid address",
			body:    map[string]string{"to": "not-an-address", "subject": "Hello", "message": "hi"},
			message: "Invalid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			status, body := f.do(t, http.MethodPost, "/api/send-email", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.message, body["message"])
			assert.Empty(t, f.primary.sent)
			assert.Empty(t, f.fallback.sent)
		})
	}
}

func TestSendPush(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/send-push", notify.PushMessage{Title: "Hi", Body: "there"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing push token", body["error"])

	status, body = f.do(t, http.MethodPost, "/api/send-push", notify.PushMessage{Token: "device", Title: "Hi", Body: "there"})
	require.Equal(t, http.StatusOK, status, body)
	require.Len(t, f.push.sent, 1)
	assert.Equal(t, "device", f.push.sent[0].Token)

	f.push.err = errors.New("pushover unavailable")
	status, body = f.do(t, http.MethodPost, "/api/send-push", notify.PushMessage{Token: "device", Title: "Hi", Body: "there"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "pushover unavailable", body["error"])
}

func TestMedicationLifecycle(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, f.medicationsPath(), map[string]interface{}{
		"name":          "Aspirin",
		"dosage":        "100mg",
		"reminderTimes": []string{"8:00", "20:30"},
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Medication added successfully", body["message"])

	medications, err := f.store.ListMedicationsForUserID(f.user.ID)
	require.NoError(t, err)
	require.Len(t, medications, 1)
	medication := medications[0]
	assert.True(t, medication.Active)
	assert.Equal(t, []string{"08:00", "20:30"}, medication.ReminderTimes)

	status, body = f.do(t, http.MethodGet, f.medicationsPath(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["medications"], 1)

	itemPath := f.medicationsPath() + "/" + medication.ID.String()

	status, body = f.do(t, http.MethodPut, itemPath, map[string]interface{}{
		"name":          "Aspirin",
		"dosage":        "200mg",
		"reminderTimes": []string{"09:00"},
		"active":        false,
	})
	require.Equal(t, http.StatusOK, status, body)

	updated, err := f.store.GetMedication(f.user.ID, medication.ID)
	require.NoError(t, err)
	assert.Equal(t, "200mg", updated.Dosage)
	assert.False(t, updated.Active)

	status, body = f.do(t, http.MethodPost, itemPath+"/test", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "sent", body["push"])

	_, err = f.server.cfg.Backup.Schedule(context.Background(), backup.ScheduleRequest{
		UserID:        f.user.ID.String(),
		MedicationID:  medication.ID.String(),
		ReminderTimes: []string{"09:00"},
	})
	require.NoError(t, err)

	status, body = f.do(t, http.MethodDelete, itemPath, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Medication deleted successfully", body["message"])

	_, err = f.store.GetMedication(f.user.ID, medication.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	reminders, err := f.store.ListScheduledRemindersForMedication(medication.ID.String())
	require.NoError(t, err)
	assert.Empty(t, reminders)

	f.server.Wait()
	assert.ElementsMatch(t, []notify.Kind{
		notify.KindCreated,
		notify.KindUpdated,
		notify.KindTest,
		notify.KindDeleted,
	}, f.dispatcher.kinds())
}

func TestCreateMedicationValidation(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, f.medicationsPath(), map[string]interface{}{
		"name":          "Aspirin",
		"reminderTimes": []string{"08:00", "25:00"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid reminder time")

	status, body = f.do(t, http.MethodPost, f.medicationsPath(), map[string]interface{}{"dosage": "1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "medication name is required", body["error"])

	medications, err := f.store.ListMedicationsForUserID(f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, medications)
}

func TestMedicationNotFound(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodGet, "/api/users/"+uuid.NewString()+"/medications", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPut, f.medicationsPath()+"/"+uuid.NewString(), map[string]string{"name": "x"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodDelete, f.medicationsPath()+"/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTestMedicationAllChannelsFailed(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.result = notify.Result{Push: errors.New("no token"), Email: errors.New("smtp down")}

	medication := &db.Medication{IDUser: f.user.ID, ID: uuid.New(), Name: "Aspirin", Active: true}
	require.NoError(t, f.store.AddMedication(medication))

	status, body := f.do(t, http.MethodPost, f.medicationsPath()+"/"+medication.ID.String()+"/test", nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "smtp down", body["email"])
}
