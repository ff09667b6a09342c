package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Querier is the interface handlers, the reminder service, and the store use
// for all queries. *Queries is the real implementation; tests inject stubs.
type Querier interface {
	// payments
	ListPaymentsDueFrom(ctx context.Context, from time.Time) ([]PaymentWithCompany, error)
	ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]Payment, error)
	CreatePayment(ctx context.Context, p CreatePaymentParams) (Payment, error)
	UpdatePayment(ctx context.Context, p UpdatePaymentParams) (Payment, error)
	DeletePayment(ctx context.Context, id, userID uuid.UUID) error
	DeletePayments(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error)

	// companies
	GetCompanyByUserID(ctx context.Context, userID uuid.UUID) (Company, error)
	CreateCompany(ctx context.Context, p CreateCompanyParams) (Company, error)

	// reminders
	ClaimReminder(ctx context.Context, userID uuid.UUID, runDate time.Time) (bool, error)
	ReleaseReminder(ctx context.Context, userID uuid.UUID, runDate time.Time) error
	RecordReminderOutcome(ctx context.Context, p RecordReminderOutcomeParams) error
	InsertReminderRun(ctx context.Context, p InsertReminderRunParams) (ReminderRun, error)
	LinkRunEntries(ctx context.Context, runID uuid.UUID, runDate time.Time) error
}

var _ Querier = (*Queries)(nil)
