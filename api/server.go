// Package api serves the medibot HTTP API.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/medibot/backup"
	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/log"
	"git.0xdad.com/tblyler/medibot/metrics"
	"git.0xdad.com/tblyler/medibot/notify"
)

// Store of users and medications
type Store interface {
	GetUserByID(id uuid.UUID) (*db.User, error)
	ListMedicationsForUserID(userID uuid.UUID) ([]*db.Medication, error)
	GetMedication(userID, medicationID uuid.UUID) (*db.Medication, error)
	AddMedication(medication *db.Medication) error
	RemoveMedication(medication *db.Medication) error
}

// Dispatcher delivers notifications
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.Result
}

// Config for New
type Config struct {
	Store      Store
	Backup     *backup.Service
	Dispatcher Dispatcher
	Push       notify.PushSender
	Email      notify.EmailSender
	Metrics    *metrics.Metrics
}

// Server handlers
type Server struct {
	cfg    Config
	logger zerolog.Logger

	// background lifecycle notifications
	wg sync.WaitGroup
}

// NewServer for the configuration
func NewServer(cfg Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: log.WithComponent("api"),
	}
}

// Routes of the API
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Handle("/metrics", s.cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/schedule-reminder", s.scheduleReminder)
		r.Delete("/schedule-reminder", s.cancelReminder)
		r.Get("/check-reminders", s.checkReminders)
		r.Post("/send-email", s.sendEmail)
		r.Post("/send-push", s.sendPush)

		r.Route("/users/{userID}/medications", func(r chi.Router) {
			r.Get("/", s.listMedications)
			r.Post("/", s.createMedication)
			r.Put("/{medicationID}", s.updateMedication)
			r.Delete("/{medicationID}", s.deleteMedication)
			r.Post("/{medicationID}/test", s.testMedication)
		})
	})

	return r
}

// Wait for background notifications to finish
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}
