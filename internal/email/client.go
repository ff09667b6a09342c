// Package email defines the interface for reminder email delivery and
// provides a Resend-backed implementation.
package email

import (
	"context"
	"time"
)

// ReminderPayment is one payment line in the reminder email.
type ReminderPayment struct {
	CompanyName  string
	Amount       float64
	DueDate      time.Time // the stored receiving date
	AgreementDay int       // day-of-month anchor, 1..31
	DelayDays    int       // rendered only when nonzero
}

// ReminderParams holds everything needed for one user's aggregated reminder.
type ReminderParams struct {
	To       string
	Payments []ReminderPayment
}

// Sender is the interface the reminder dispatcher uses to send email.
// Tests inject a stub that records calls without hitting the network.
type Sender interface {
	// SendPaymentReminder sends one aggregated email covering every payment in
	// p.Payments. Returns the provider's message id on success.
	SendPaymentReminder(ctx context.Context, p ReminderParams) (string, error)
}
