package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/payment-reminder-backend/internal/api"
	"github.com/nyashahama/payment-reminder-backend/internal/db"
	"github.com/nyashahama/payment-reminder-backend/internal/identity"
	"github.com/nyashahama/payment-reminder-backend/internal/reminder"
)

// ─── STUBS ───────────────────────────────────────────────────────────────────

type stubQuerier struct {
	db.Querier // panic on anything not stubbed below

	payments      []db.Payment
	listErr       error
	created       *db.CreatePaymentParams
	updateErr     error
	deleteErr     error
	deletedCount  int64
	company       db.Company
	getCompanyErr error
	createCoErr   error
}

func (s *stubQuerier) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]db.Payment, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.payments, nil
}

func (s *stubQuerier) CreatePayment(ctx context.Context, p db.CreatePaymentParams) (db.Payment, error) {
	s.created = &p
	return db.Payment{
		ID:            uuid.New(),
		UserID:        p.UserID,
		CompanyID:     p.CompanyID,
		CompanyName:   p.CompanyName,
		AgreementDay:  p.AgreementDay,
		PaymentDelay:  p.PaymentDelay,
		ReceivingDate: p.ReceivingDate,
		PaymentAmount: p.PaymentAmount,
		CreatedAt:     time.Now(),
	}, nil
}

func (s *stubQuerier) UpdatePayment(ctx context.Context, p db.UpdatePaymentParams) (db.Payment, error) {
	if s.updateErr != nil {
		return db.Payment{}, s.updateErr
	}
	return db.Payment{ID: p.ID, UserID: p.UserID, CompanyName: p.CompanyName, CreatedAt: time.Now()}, nil
}

func (s *stubQuerier) DeletePayment(ctx context.Context, id, userID uuid.UUID) error {
	return s.deleteErr
}

func (s *stubQuerier) DeletePayments(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error) {
	return s.deletedCount, nil
}

func (s *stubQuerier) GetCompanyByUserID(ctx context.Context, userID uuid.UUID) (db.Company, error) {
	if s.getCompanyErr != nil {
		return db.Company{}, s.getCompanyErr
	}
	return s.company, nil
}

func (s *stubQuerier) CreateCompany(ctx context.Context, p db.CreateCompanyParams) (db.Company, error) {
	if s.createCoErr != nil {
		return db.Company{}, s.createCoErr
	}
	return db.Company{ID: uuid.New(), UserID: p.UserID, Name: p.Name, CreatedAt: time.Now()}, nil
}

type stubRunner struct {
	report   reminder.RunReport
	runErr   error
	debug    reminder.DebugReport
	debugErr error
}

func (s *stubRunner) Run(ctx context.Context) (reminder.RunReport, error) {
	return s.report, s.runErr
}

func (s *stubRunner) Debug(ctx context.Context) (reminder.DebugReport, error) {
	return s.debug, s.debugErr
}

type stubIdentity struct {
	user identity.User
	err  error
}

func (s *stubIdentity) ListUsers(ctx context.Context) ([]identity.User, error) {
	return nil, errors.New("not used in handler tests")
}

func (s *stubIdentity) VerifyToken(ctx context.Context, token string) (identity.User, error) {
	if s.err != nil {
		return identity.User{}, s.err
	}
	return s.user, nil
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

var testUserID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func newTestServer(q *stubQuerier, runner *stubRunner, ids *stubIdentity) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.NewServer(q, runner, ids, api.Config{Env: "development"}, logger)
}

func authedIdentity() *stubIdentity {
	return &stubIdentity{user: identity.User{ID: testUserID.String(), Email: "user@example.com"}}
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// ─── CORS / HEALTH ───────────────────────────────────────────────────────────

func TestPreflightReturns200EmptyBody(t *testing.T) {
	h := newTestServer(&stubQuerier{}, &stubRunner{}, authedIdentity())

	rec := doRequest(t, h, http.MethodOptions, "/api/payments", "", "")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("Allow-Headers = %q, want Authorization listed", got)
	}
}

func TestCORSHeadersOnNormalResponses(t *testing.T) {
	h := newTestServer(&stubQuerier{}, &stubRunner{}, authedIdentity())

	rec := doRequest(t, h, http.MethodGet, "/healthz", "", "")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want * on non-preflight responses too", got)
	}
}

// ─── REMINDER TRIGGERS ───────────────────────────────────────────────────────

func TestRunReminders_ReturnsReport(t *testing.T) {
	runner := &stubRunner{report: reminder.RunReport{
		Success:    true,
		Message:    "Processed 3 due payments for 2 users",
		DueToday:   3,
		EmailsSent: 2,
		Results:    []reminder.EmailResult{},
	}}
	h := newTestServer(&stubQuerier{}, runner, authedIdentity())

	// Both verbs are accepted, no auth required.
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := doRequest(t, h, method, "/api/reminders/run", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200: %s", method, rec.Code, rec.Body.String())
		}

		var body struct {
			Success    bool   `json:"success"`
			Message    string `json:"message"`
			DueToday   int    `json:"dueToday"`
			EmailsSent int    `json:"emailsSent"`
		}
		decodeBody(t, rec, &body)
		if !body.Success || body.DueToday != 3 || body.EmailsSent != 2 {
			t.Errorf("%s body = %+v", method, body)
		}
	}
}

func TestRunReminders_FatalErrorReturns500(t *testing.T) {
	runner := &stubRunner{runErr: errors.New("reminder: fetch payments: connection refused")}
	h := newTestServer(&stubQuerier{}, runner, authedIdentity())

	rec := doRequest(t, h, http.MethodPost, "/api/reminders/run", "", "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Success || body.Error == "" {
		t.Errorf("body = %+v, want success=false with error text", body)
	}
}

func TestDebugReminders_ReturnsTrace(t *testing.T) {
	runner := &stubRunner{debug: reminder.DebugReport{
		Success:    true,
		Payments:   []reminder.PaymentTrace{{ID: uuid.NewString(), Divergent: true}},
		UserEmails: map[string]string{},
	}}
	h := newTestServer(&stubQuerier{}, runner, authedIdentity())

	rec := doRequest(t, h, http.MethodGet, "/api/reminders/debug", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success  bool             `json:"success"`
		Payments []map[string]any `json:"all_fetched_payments_with_debug_info"`
		EnvCheck map[string]bool  `json:"environment_check"`
	}
	decodeBody(t, rec, &body)
	if !body.Success || len(body.Payments) != 1 {
		t.Errorf("body = %+v", body)
	}
	if _, ok := body.EnvCheck["has_resend_key"]; !ok {
		t.Error("environment_check missing has_resend_key")
	}
}

// ─── AUTH ────────────────────────────────────────────────────────────────────

func TestPayments_MissingTokenReturns401(t *testing.T) {
	h := newTestServer(&stubQuerier{}, &stubRunner{}, authedIdentity())

	rec := doRequest(t, h, http.MethodGet, "/api/payments", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestPayments_InvalidTokenReturns401(t *testing.T) {
	ids := &stubIdentity{err: errors.New("token expired")}
	h := newTestServer(&stubQuerier{}, &stubRunner{}, ids)

	rec := doRequest(t, h, http.MethodGet, "/api/payments", "bad-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// ─── PAYMENT CRUD ────────────────────────────────────────────────────────────

func TestCreatePayment_ComputesReceivingDate(t *testing.T) {
	q := &stubQuerier{}
	h := newTestServer(q, &stubRunner{}, authedIdentity())

	body := `{
		"company_name": "Acme Corp",
		"company_id": "` + uuid.NewString() + `",
		"agreement_day": "2025-01-31",
		"payment_delay": 2,
		"payment_amount": 150.5
	}`
	rec := doRequest(t, h, http.MethodPost, "/api/payments", "tok", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		UserID        string  `json:"user_id"`
		ReceivingDate *string `json:"receiving_date"`
	}
	decodeBody(t, rec, &resp)
	if resp.ReceivingDate == nil || *resp.ReceivingDate != "2025-02-02" {
		t.Errorf("receiving_date = %v, want 2025-02-02 (agreement + delay)", resp.ReceivingDate)
	}
	if resp.UserID != testUserID.String() {
		t.Errorf("user_id = %q, want the authenticated user", resp.UserID)
	}

	if q.created == nil || !q.created.ReceivingDate.Valid {
		t.Fatal("create params missing receiving date")
	}
}

func TestCreatePayment_ExplicitReceivingDateWins(t *testing.T) {
	q := &stubQuerier{}
	h := newTestServer(q, &stubRunner{}, authedIdentity())

	body := `{
		"company_name": "Acme Corp",
		"company_id": "` + uuid.NewString() + `",
		"agreement_day": "2025-01-31",
		"payment_delay": 2,
		"payment_amount": 150.5,
		"receiving_date": "2025-02-10"
	}`
	rec := doRequest(t, h, http.MethodPost, "/api/payments", "tok", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ReceivingDate *string `json:"receiving_date"`
	}
	decodeBody(t, rec, &resp)
	if resp.ReceivingDate == nil || *resp.ReceivingDate != "2025-02-10" {
		t.Errorf("receiving_date = %v, want the client-supplied 2025-02-10", resp.ReceivingDate)
	}
}

func TestCreatePayment_ValidationErrors(t *testing.T) {
	h := newTestServer(&stubQuerier{}, &stubRunner{}, authedIdentity())
	companyID := uuid.NewString()

	tests := []struct {
		name string
		body string
	}{
		{"missing company name", `{"company_id":"` + companyID + `","agreement_day":"2025-01-31"}`},
		{"bad agreement date", `{"company_name":"A","company_id":"` + companyID + `","agreement_day":"31/01/2025"}`},
		{"negative delay", `{"company_name":"A","company_id":"` + companyID + `","agreement_day":"2025-01-31","payment_delay":-1}`},
		{"negative amount", `{"company_name":"A","company_id":"` + companyID + `","agreement_day":"2025-01-31","payment_amount":-5}`},
		{"bad company id", `{"company_name":"A","company_id":"nope","agreement_day":"2025-01-31"}`},
		{"unknown field", `{"company_name":"A","company_id":"` + companyID + `","agreement_day":"2025-01-31","surprise":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/payments", "tok", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdatePayment_NotFoundReturns404(t *testing.T) {
	q := &stubQuerier{updateErr: sql.ErrNoRows}
	h := newTestServer(q, &stubRunner{}, authedIdentity())

	body := `{
		"company_name": "Acme Corp",
		"company_id": "` + uuid.NewString() + `",
		"agreement_day": "2025-01-31",
		"payment_delay": 2,
		"payment_amount": 150.5
	}`
	rec := doRequest(t, h, http.MethodPut, "/api/payments/"+uuid.NewString(), "tok", body)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeletePayments_Batch(t *testing.T) {
	q := &stubQuerier{deletedCount: 2}
	h := newTestServer(q, &stubRunner{}, authedIdentity())

	body := `{"ids":["` + uuid.NewString() + `","` + uuid.NewString() + `"]}`
	rec := doRequest(t, h, http.MethodDelete, "/api/payments", "tok", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool  `json:"success"`
		Deleted int64 `json:"deleted"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.Deleted != 2 {
		t.Errorf("body = %+v", resp)
	}
}

func TestDeletePayments_EmptyIDsReturns400(t *testing.T) {
	h := newTestServer(&stubQuerier{}, &stubRunner{}, authedIdentity())

	rec := doRequest(t, h, http.MethodDelete, "/api/payments", "tok", `{"ids":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// ─── COMPANY ─────────────────────────────────────────────────────────────────

func TestGetCompany_NotFoundReturns404(t *testing.T) {
	q := &stubQuerier{getCompanyErr: sql.ErrNoRows}
	h := newTestServer(q, &stubRunner{}, authedIdentity())

	rec := doRequest(t, h, http.MethodGet, "/api/company", "tok", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateCompany_MissingNameReturns400(t *testing.T) {
	h := newTestServer(&stubQuerier{}, &stubRunner{}, authedIdentity())

	rec := doRequest(t, h, http.MethodPost, "/api/company", "tok", `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateCompany_Success(t *testing.T) {
	h := newTestServer(&stubQuerier{}, &stubRunner{}, authedIdentity())

	rec := doRequest(t, h, http.MethodPost, "/api/company", "tok", `{"name":"Acme Corp"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Name   string `json:"name"`
		UserID string `json:"user_id"`
	}
	decodeBody(t, rec, &resp)
	if resp.Name != "Acme Corp" || resp.UserID != testUserID.String() {
		t.Errorf("body = %+v", resp)
	}
}
