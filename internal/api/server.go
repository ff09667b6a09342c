// Package api implements the HTTP layer for the payment reminder backend.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nyashahama/payment-reminder-backend/internal/db"
	"github.com/nyashahama/payment-reminder-backend/internal/identity"
	"github.com/nyashahama/payment-reminder-backend/internal/reminder"
)

// ReminderRunner is the slice of the reminder service the HTTP layer uses.
// *reminder.Service is the real implementation; tests inject a stub.
type ReminderRunner interface {
	Run(ctx context.Context) (reminder.RunReport, error)
	Debug(ctx context.Context) (reminder.DebugReport, error)
}

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env string
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// q handles all single-query reads and the CRUD writes.
	q db.Querier

	// reminders runs the due-date reminder pipeline.
	reminders ReminderRunner

	// ids verifies bearer tokens for the CRUD routes.
	ids identity.Client

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.ListenAndServe.
func NewServer(
	q db.Querier,
	reminders ReminderRunner,
	ids identity.Client,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	s := &Server{
		q:         q,
		reminders: reminders,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// ── API ───────────────────────────────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {

		// Reminder runs — no auth; invoked by the external scheduler. Both
		// verbs are accepted so a plain cron curl works either way.
		r.Get("/reminders/run", s.handleRunReminders)
		r.Post("/reminders/run", s.handleRunReminders)
		r.Get("/reminders/debug", s.handleDebugReminders)
		r.Post("/reminders/debug", s.handleDebugReminders)

		// User-scoped routes — require a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/payments", s.handleListPayments)
			r.Post("/payments", s.handleCreatePayment)
			r.Put("/payments/{paymentID}", s.handleUpdatePayment)
			r.Delete("/payments/{paymentID}", s.handleDeletePayment)
			r.Delete("/payments", s.handleDeletePayments)

			r.Get("/company", s.handleGetCompany)
			r.Post("/company", s.handleCreateCompany)
		})
	})

	return r
}
