package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/notify"
	"git.0xdad.com/tblyler/medibot/schedule"
)

type medicationRequest struct {
	Name          string     `json:"name"`
	Dosage        string     `json:"dosage"`
	Frequency     string     `json:"frequency"`
	StartDate     time.Time  `json:"startDate"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	Notes         string     `json:"notes"`
	ReminderTimes []string   `json:"reminderTimes"`
	Active        *bool      `json:"active,omitempty"`
}

// apply the request to medication, normalizing reminder times
func (req *medicationRequest) apply(medication *db.Medication) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("medication name is required")
	}

	times := make([]string, 0, len(req.ReminderTimes))
	for _, value := range req.ReminderTimes {
		if strings.TrimSpace(value) == "" {
			continue
		}

		at, err := schedule.ParseClockTime(value)
		if err != nil {
			return fmt.Errorf("invalid reminder time %w", err)
		}

		times = append(times, at.String())
	}

	medication.Name = strings.TrimSpace(req.Name)
	medication.Dosage = req.Dosage
	medication.Frequency = req.Frequency
	medication.StartDate = req.StartDate
	medication.EndDate = req.EndDate
	medication.Notes = req.Notes
	medication.ReminderTimes = times
	if req.Active != nil {
		medication.Active = *req.Active
	}

	return nil
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) (*db.User, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return nil, false
	}

	user, err := s.cfg.Store.GetUserByID(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}

	if err != nil {
		s.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to get user")
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return nil, false
	}

	return user, true
}

func (s *Server) medication(w http.ResponseWriter, r *http.Request, user *db.User) (*db.Medication, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "medicationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid medication id")
		return nil, false
	}

	medication, err := s.cfg.Store.GetMedication(user.ID, id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "medication not found")
		return nil, false
	}

	if err != nil {
		s.logger.Error().Err(err).Str("medication_id", id.String()).Msg("failed to get medication")
		writeError(w, http.StatusInternalServerError, "failed to get medication")
		return nil, false
	}

	return medication, true
}

// notifyUser in the background; lifecycle notifications never fail the request
func (s *Server) notifyUser(ctx context.Context, user *db.User, kind notify.Kind, title, body string) {
	if s.cfg.Dispatcher == nil {
		return
	}

	n := notify.Notification{
		Kind:   kind,
		UserID: user.ID.String(),
		Email:  user.Email,
		Title:  title,
		Body:   body,
	}

	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cfg.Dispatcher.Dispatch(ctx, n)
	}()
}

func (s *Server) listMedications(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	medications, err := s.cfg.Store.ListMedicationsForUserID(user.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to list medications")
		writeError(w, http.StatusInternalServerError, "failed to list medications")
		return
	}

	if medications == nil {
		medications = []*db.Medication{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"medications": medications,
	})
}

func (s *Server) createMedication(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	var req medicationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	medication := &db.Medication{
		IDUser:    user.ID,
		ID:        uuid.New(),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := req.apply(medication); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.cfg.Store.AddMedication(medication); err != nil {
		s.saveFailed(w, r, user, err)
		return
	}

	s.notifyUser(r.Context(), user, notify.KindCreated, "Medication Saved", savedMessage(medication, "added"))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"message":    "Medication added successfully",
		"medication": medication,
	})
}

func (s *Server) updateMedication(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	medication, ok := s.medication(w, r, user)
	if !ok {
		return
	}

	var req medicationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := req.apply(medication); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	medication.UpdatedAt = time.Now()

	if err := s.cfg.Store.AddMedication(medication); err != nil {
		s.saveFailed(w, r, user, err)
		return
	}

	s.notifyUser(r.Context(), user, notify.KindUpdated, "Medication Saved", savedMessage(medication, "updated"))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "Medication updated successfully",
		"medication": medication,
	})
}

func savedMessage(medication *db.Medication, verb string) string {
	return fmt.Sprintf("Your medication %s (%s) has been %s successfully.", medication.Name, medication.Dosage, verb)
}

func (s *Server) saveFailed(w http.ResponseWriter, r *http.Request, user *db.User, err error) {
	s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to save medication")
	s.notifyUser(r.Context(), user, notify.KindError, "Medication Save Error", "Failed to save medication: "+err.Error())
	writeError(w, http.StatusInternalServerError, "Failed to save medication: "+err.Error())
}

func (s *Server) deleteMedication(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	medication, ok := s.medication(w, r, user)
	if !ok {
		return
	}

	if err := s.cfg.Store.RemoveMedication(medication); err != nil {
		s.logger.Error().Err(err).Str("medication_id", medication.ID.String()).Msg("failed to delete medication")
		s.notifyUser(r.Context(), user, notify.KindError, "Medication Delete Error", "Failed to delete medication: "+err.Error())
		writeError(w, http.StatusInternalServerError, "Failed to delete medication: "+err.Error())
		return
	}

	if s.cfg.Backup != nil {
		if _, err := s.cfg.Backup.Cancel(r.Context(), medication.ID.String()); err != nil {
			s.logger.Warn().Err(err).Str("medication_id", medication.ID.String()).Msg("failed to cancel server reminders of deleted medication")
		}
	}

	s.notifyUser(r.Context(), user, notify.KindDeleted, "Medication Deleted", fmt.Sprintf("Your medication %s has been deleted.", medication.Name))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Medication deleted successfully",
	})
}

func (s *Server) testMedication(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}

	medication, ok := s.medication(w, r, user)
	if !ok {
		return
	}

	if s.cfg.Dispatcher == nil {
		writeError(w, http.StatusInternalServerError, "notifications are not configured")
		return
	}

	result := s.cfg.Dispatcher.Dispatch(r.Context(), notify.Notification{
		Kind:   notify.KindTest,
		UserID: user.ID.String(),
		Email:  user.Email,
		Title:  "Medication Reminder",
		Body:   fmt.Sprintf("This is a medication reminder for your medication %s (%s).", medication.Name, medication.Dosage),
	})

	status := http.StatusOK
	if result.Failed() {
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]interface{}{
		"success": !result.Failed(),
		"partial": result.Partial(),
		"push":    errorText(result.Push),
		"email":   errorText(result.Email),
	})
}

func errorText(err error) string {
	if err == nil {
		return "sent"
	}

	return err.Error()
}
