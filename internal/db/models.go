package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Company is the single-row profile created at sign-up. One per user.
type Company struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Payment is one recurring payment row. The date and amount columns are
// nullable in the schema (legacy rows imported before validation existed), so
// they are modeled as sql.Null values and callers must check Valid.
//
// ReceivingDate, when present, is the authoritative due date. AgreementDay
// and PaymentDelay allow it to be re-derived, but the stored value always
// wins (see internal/duedate).
type Payment struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	CompanyID     uuid.UUID
	CompanyName   string
	AgreementDay  sql.NullTime
	PaymentDelay  sql.NullInt32
	ReceivingDate sql.NullTime
	PaymentAmount sql.NullFloat64
	CreatedAt     time.Time
}

// CompanyRef is the slice of the companies row carried along in the reminder
// join. It exists so an absent join row is an explicit nil, not a struct of
// zero values that looks real.
type CompanyRef struct {
	Name   string
	UserID uuid.UUID
}

// PaymentWithCompany is a payment with its (possibly absent) company row.
type PaymentWithCompany struct {
	Payment
	Company *CompanyRef
}

// OwnerID returns the user that owns this payment for reminder purposes: the
// company owner when the join row is present, otherwise the payment's own
// user_id.
func (p PaymentWithCompany) OwnerID() uuid.UUID {
	if p.Company != nil {
		return p.Company.UserID
	}
	return p.UserID
}

// ReminderLogEntry is one (user, date) reminder claim and its outcome.
// A row is inserted when a user's send is claimed; on success it is updated
// with the outcome, on failure it is deleted so a later run can retry.
type ReminderLogEntry struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RunDate      time.Time
	Email        sql.NullString
	PaymentCount sql.NullInt32
	RunID        uuid.NullUUID
	CreatedAt    time.Time
}

// ReminderRun is the persisted summary of one reminder run.
type ReminderRun struct {
	ID            uuid.UUID
	RunDate       time.Time
	TotalFetched  int32
	DueActual     int32
	DueCalculated int32
	Divergent     int32
	UserGroups    int32
	EmailsSent    int32
	EmailsFailed  int32
	Report        []byte // raw JSON of the full RunReport
	CreatedAt     time.Time
}
