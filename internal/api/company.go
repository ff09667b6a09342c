package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq"
	"github.com/nyashahama/payment-reminder-backend/internal/db"
)

type companyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func toCompanyResponse(c db.Company) companyResponse {
	return companyResponse{
		ID:        c.ID.String(),
		UserID:    c.UserID.String(),
		Name:      c.Name,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

// handleGetCompany returns the caller's single company profile.
func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	company, err := s.q.GetCompanyByUserID(r.Context(), user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		respondErr(w, http.StatusNotFound, "company profile not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("get company: %w", err))
		return
	}

	respond(w, http.StatusOK, toCompanyResponse(company))
}

// handleCreateCompany creates the sign-up profile row. One per user — a
// second create returns 409.
func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondErr(w, http.StatusBadRequest, "name is required")
		return
	}

	company, err := s.q.CreateCompany(r.Context(), db.CreateCompanyParams{
		UserID: user.ID,
		Name:   req.Name,
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			respondErr(w, http.StatusConflict, "company profile already exists")
			return
		}
		s.respondInternalErr(w, r, fmt.Errorf("create company: %w", err))
		return
	}

	respond(w, http.StatusCreated, toCompanyResponse(company))
}
