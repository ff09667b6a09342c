package reminder

import "github.com/nyashahama/payment-reminder-backend/internal/config"

// EmailResult is the per-user outcome of one dispatch attempt. The JSON keys
// match what the scheduler integration already consumes.
type EmailResult struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	PaymentCount int    `json:"paymentCount"`
	Success      bool   `json:"success"`
	Result       string `json:"result,omitempty"` // provider message id
	Error        string `json:"error,omitempty"`
}

// RunReport is the top-level result of one reminder run. Success stays true
// even when individual sends fail — delivery failures are per-user and
// reported in Results, not fatal.
type RunReport struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	TotalFetched  int `json:"totalFetched"`
	DueToday      int `json:"dueToday"`           // by stored receiving_date
	DueCalculated int `json:"dueTodayCalculated"` // by legacy recomputation, diagnostic
	Divergent     int `json:"divergent"`          // payments where the two disagree

	UserGroups         int `json:"userGroups"`
	UnresolvedPayments int `json:"unresolvedPayments"`     // owner had no resolvable email
	SkippedNotified    int `json:"skippedAlreadyNotified"` // same-day dedup hits

	EmailsSent   int           `json:"emailsSent"`
	EmailsFailed int           `json:"emailsFailed"`
	Results      []EmailResult `json:"results"`
}

// PaymentTrace is the per-payment debug record: both due-date computations
// side by side, plus everything needed to see why they agree or not.
type PaymentTrace struct {
	ID          string  `json:"id"`
	CompanyName string  `json:"company_name"`
	Amount      float64 `json:"amount"`

	AgreementDayDB  string `json:"agreement_day_db"` // full date as stored
	AgreementDayNum int    `json:"agreement_day_num_for_calc"`
	PaymentDelay    int    `json:"payment_delay"`

	ReceivingDate    string `json:"actual_receiving_date"`
	IsDueTodayActual bool   `json:"is_due_today_actual"`

	CalculatedDueDate    string `json:"calculated_due_date"`
	IsDueTodayCalculated bool   `json:"is_due_today_calculated"`
	Divergent            bool   `json:"divergent"`

	CompanyUserID string `json:"company_user_id,omitempty"`
}

// DebugInfo is the summary block of a debug run.
type DebugInfo struct {
	RunTimestamp    string `json:"run_timestamp"`
	CurrentDate     string `json:"current_date_iso"`
	TotalFetched    int    `json:"total_payments_fetched"`
	DueActual       int    `json:"payments_due_today_actual"`
	DueCalculated   int    `json:"payments_due_today_calculated"`
	Divergent       int    `json:"payments_divergent"`
	UserEmailsFound int    `json:"user_emails_found"`
}

// DebugReport is the full trace variant. It sends nothing and never fails on
// missing optional configuration — the environment block reports presence as
// booleans only.
type DebugReport struct {
	Success       bool              `json:"success"`
	DebugInfo     DebugInfo         `json:"debug_info"`
	Payments      []PaymentTrace    `json:"all_fetched_payments_with_debug_info"`
	UserEmails    map[string]string `json:"user_emails_map"`
	IdentityError string            `json:"identity_error,omitempty"`
	Environment   config.Presence   `json:"environment_check"`
}
