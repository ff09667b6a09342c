package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nyashahama/payment-reminder-backend/internal/db"
	"github.com/nyashahama/payment-reminder-backend/internal/duedate"
)

// ─── RESPONSE SHAPE ──────────────────────────────────────────────────────────

// paymentResponse mirrors the row shape the dashboard table consumes. Dates
// are YYYY-MM-DD strings; absent values are null.
type paymentResponse struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	CompanyID     string   `json:"company_id"`
	CompanyName   string   `json:"company_name"`
	AgreementDay  *string  `json:"agreement_day"`
	PaymentDelay  *int     `json:"payment_delay"`
	ReceivingDate *string  `json:"receiving_date"`
	PaymentAmount *float64 `json:"payment_amount"`
	CreatedAt     string   `json:"created_at"`
}

func toPaymentResponse(p db.Payment) paymentResponse {
	resp := paymentResponse{
		ID:          p.ID.String(),
		UserID:      p.UserID.String(),
		CompanyID:   p.CompanyID.String(),
		CompanyName: p.CompanyName,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.AgreementDay.Valid {
		s := p.AgreementDay.Time.Format(duedate.ISODate)
		resp.AgreementDay = &s
	}
	if p.PaymentDelay.Valid {
		d := int(p.PaymentDelay.Int32)
		resp.PaymentDelay = &d
	}
	if p.ReceivingDate.Valid {
		s := p.ReceivingDate.Time.Format(duedate.ISODate)
		resp.ReceivingDate = &s
	}
	if p.PaymentAmount.Valid {
		a := p.PaymentAmount.Float64
		resp.PaymentAmount = &a
	}
	return resp
}

// ─── REQUEST SHAPE ───────────────────────────────────────────────────────────

type paymentRequest struct {
	CompanyName   string  `json:"company_name"`
	CompanyID     string  `json:"company_id"`
	AgreementDay  string  `json:"agreement_day"`  // YYYY-MM-DD
	PaymentDelay  int     `json:"payment_delay"`  // days, >= 0
	PaymentAmount float64 `json:"payment_amount"` // >= 0
	ReceivingDate string  `json:"receiving_date"` // optional; computed when empty
}

// parsed validates the request and fills in the receiving date when the
// client did not supply one: agreement date plus delay days, the same rule
// the add-payment form uses.
func (req *paymentRequest) parsed() (db.CreatePaymentParams, error) {
	if req.CompanyName == "" {
		return db.CreatePaymentParams{}, fmt.Errorf("company_name is required")
	}
	if req.PaymentDelay < 0 {
		return db.CreatePaymentParams{}, fmt.Errorf("payment_delay must be >= 0")
	}
	if req.PaymentAmount < 0 {
		return db.CreatePaymentParams{}, fmt.Errorf("payment_amount must be >= 0")
	}

	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		return db.CreatePaymentParams{}, fmt.Errorf("company_id must be a valid uuid")
	}

	agreement, err := time.Parse(duedate.ISODate, req.AgreementDay)
	if err != nil {
		return db.CreatePaymentParams{}, fmt.Errorf("agreement_day must be a YYYY-MM-DD date")
	}

	var receiving time.Time
	if req.ReceivingDate != "" {
		receiving, err = time.Parse(duedate.ISODate, req.ReceivingDate)
		if err != nil {
			return db.CreatePaymentParams{}, fmt.Errorf("receiving_date must be a YYYY-MM-DD date")
		}
	} else {
		receiving = duedate.ReceivingDate(agreement, req.PaymentDelay)
	}

	return db.CreatePaymentParams{
		CompanyID:     companyID,
		CompanyName:   req.CompanyName,
		AgreementDay:  sql.NullTime{Time: agreement, Valid: true},
		PaymentDelay:  sql.NullInt32{Int32: int32(req.PaymentDelay), Valid: true},
		ReceivingDate: sql.NullTime{Time: receiving, Valid: true},
		PaymentAmount: sql.NullFloat64{Float64: req.PaymentAmount, Valid: true},
	}, nil
}

// ─── HANDLERS ────────────────────────────────────────────────────────────────

// handleListPayments returns the caller's payments, newest first.
func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	payments, err := s.q.ListPaymentsByUser(r.Context(), user.ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list payments: %w", err))
		return
	}

	out := make([]paymentResponse, len(payments))
	for i, p := range payments {
		out[i] = toPaymentResponse(p)
	}
	respond(w, http.StatusOK, map[string]any{"payments": out})
}

// handleCreatePayment creates a payment for the caller. The receiving date —
// the authoritative due date from then on — is computed server-side when the
// request omits it.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}

	params, err := req.parsed()
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}
	params.UserID = user.ID

	created, err := s.q.CreatePayment(r.Context(), params)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("create payment: %w", err))
		return
	}

	respond(w, http.StatusCreated, toPaymentResponse(created))
}

// handleUpdatePayment is a full-row update of one of the caller's payments.
func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}

	params, err := req.parsed()
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.q.UpdatePayment(r.Context(), db.UpdatePaymentParams{
		ID:            paymentID,
		UserID:        user.ID,
		CompanyName:   params.CompanyName,
		AgreementDay:  params.AgreementDay,
		PaymentDelay:  params.PaymentDelay,
		ReceivingDate: params.ReceivingDate,
		PaymentAmount: params.PaymentAmount,
	})
	if errors.Is(err, sql.ErrNoRows) {
		respondErr(w, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("update payment: %w", err))
		return
	}

	respond(w, http.StatusOK, toPaymentResponse(updated))
}

// handleDeletePayment removes one of the caller's payments.
func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	err = s.q.DeletePayment(r.Context(), paymentID, user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		respondErr(w, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("delete payment: %w", err))
		return
	}

	respond(w, http.StatusOK, map[string]bool{"success": true})
}

// handleDeletePayments removes a batch of the caller's payments by id.
func (s *Server) handleDeletePayments(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req struct {
		IDs []string `json:"ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		respondErr(w, http.StatusBadRequest, "ids must not be empty")
		return
	}

	ids := make([]uuid.UUID, len(req.IDs))
	for i, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid payment id: "+raw)
			return
		}
		ids[i] = id
	}

	deleted, err := s.q.DeletePayments(r.Context(), ids, user.ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("delete payments: %w", err))
		return
	}

	respond(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}
