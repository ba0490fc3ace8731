package api

import (
	"errors"
	"net/http"

	"git.0xdad.com/tblyler/medibot/notify"
)

func (s *Server) sendEmail(w http.ResponseWriter, r *http.Request) {
	var msg notify.EmailMessage
	if err := decode(r, &msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	if msg.To == "" || msg.Subject == "" || msg.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "Missing required fields"})
		return
	}

	if err := notify.ValidateEmail(msg.To); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "Invalid email address"})
		return
	}

	if s.cfg.Email == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": notify.ErrNoEmailProvider.Error()})
		return
	}

	receipt, err := s.cfg.Email.SendEmail(r.Context(), msg)
	if err != nil {
		s.logger.Error().Err(err).Str("to", msg.To).Msg("failed to send email")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	message := "Email sent successfully"
	if receipt.Fallback {
		message = "Email sent successfully via " + receipt.Provider + " (fallback)"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    receipt,
	})
}

func (s *Server) sendPush(w http.ResponseWriter, r *http.Request) {
	var msg notify.PushMessage
	if err := decode(r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if msg.Token == "" {
		writeError(w, http.StatusBadRequest, "Missing push token")
		return
	}

	if s.cfg.Push == nil {
		writeError(w, http.StatusInternalServerError, "push: "+notify.ErrNotConfigured.Error())
		return
	}

	if err := s.cfg.Push.SendPush(r.Context(), msg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, notify.ErrNoPushToken) {
			status = http.StatusBadRequest
		}

		s.logger.Error().Err(err).Msg("failed to send push notification")
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
