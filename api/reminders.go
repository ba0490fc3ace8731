package api

import (
	"errors"
	"io"
	"net/http"

	"git.0xdad.com/tblyler/medibot/backup"
)

func (s *Server) scheduleReminder(w http.ResponseWriter, r *http.Request) {
	var req backup.ScheduleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reminders, err := s.cfg.Backup.Schedule(r.Context(), req)
	switch {
	case errors.Is(err, backup.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	case errors.Is(err, backup.ErrNoValidTimes):
		writeError(w, http.StatusBadRequest, "No valid reminder times provided")
		return
	case errors.Is(err, backup.ErrInvalidTimezone):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Str("medication_id", req.MedicationID).Msg("failed to schedule reminders")
		writeError(w, http.StatusInternalServerError, "Failed to schedule reminder: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Reminders scheduled successfully",
		"scheduled": len(reminders),
	})
}

func (s *Server) cancelReminder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MedicationID string `json:"medicationId"`
	}

	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.MedicationID == "" {
		req.MedicationID = r.URL.Query().Get("medicationId")
	}

	if req.MedicationID == "" {
		writeError(w, http.StatusBadRequest, "Medication ID required")
		return
	}

	cancelled, err := s.cfg.Backup.Cancel(r.Context(), req.MedicationID)
	if err != nil {
		s.logger.Error().Err(err).Str("medication_id", req.MedicationID).Msg("failed to cancel reminders")
		writeError(w, http.StatusInternalServerError, "Failed to cancel reminders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Reminders cancelled successfully",
		"cancelled": cancelled,
	})
}

func (s *Server) checkReminders(w http.ResponseWriter, r *http.Request) {
	processed, err := s.cfg.Backup.ProcessDue(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to process due reminders")
		writeError(w, http.StatusInternalServerError, "Failed to check reminders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"processed": processed,
	})
}
