package api

import (
	"net/http"
)

// ─── GET|POST /api/reminders/run ─────────────────────────────────────────────

// handleRunReminders executes one reminder run and returns its report.
//
// The response distinguishes the two failure classes: a fatal error (cannot
// fetch payments, cannot list identities) is a 500 with {success:false};
// per-user delivery failures leave success true and show up in the results
// list with their error messages.
func (s *Server) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	report, err := s.reminders.Run(r.Context())
	if err != nil {
		s.logger.Error("reminder run failed", "error", err, logField(r))
		respond(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	respond(w, http.StatusOK, report)
}

// ─── GET|POST /api/reminders/debug ───────────────────────────────────────────

// handleDebugReminders returns the full per-payment trace without sending
// anything. Missing optional credentials are reported as booleans in the
// environment_check block, never as a failure.
func (s *Server) handleDebugReminders(w http.ResponseWriter, r *http.Request) {
	report, err := s.reminders.Debug(r.Context())
	if err != nil {
		s.logger.Error("reminder debug failed", "error", err, logField(r))
		respond(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	respond(w, http.StatusOK, report)
}
