package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const paymentColumns = `id, user_id, company_id, company_name, agreement_day,
	payment_delay, receiving_date, payment_amount, created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.CompanyID,
		&p.CompanyName,
		&p.AgreementDay,
		&p.PaymentDelay,
		&p.ReceivingDate,
		&p.PaymentAmount,
		&p.CreatedAt,
	)
	return p, err
}

// ListPaymentsDueFrom returns every payment whose receiving_date is on or
// after the given date, joined with its company row. Payments with a null
// receiving_date are excluded — they can never satisfy the due-today rule.
// The company join is LEFT so a deleted company does not hide its payments.
func (q *Queries) ListPaymentsDueFrom(ctx context.Context, from time.Time) ([]PaymentWithCompany, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.company_id, p.company_name, p.agreement_day,
		       p.payment_delay, p.receiving_date, p.payment_amount, p.created_at,
		       c.name, c.user_id
		FROM payments p
		LEFT JOIN companies c ON c.id = p.company_id
		WHERE p.receiving_date >= $1
		ORDER BY p.receiving_date, p.created_at
	`, from.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list payments due from %s: %w", from.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var out []PaymentWithCompany
	for rows.Next() {
		var (
			p             PaymentWithCompany
			companyName   sql.NullString
			companyUserID uuid.NullUUID
		)
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.CompanyID, &p.CompanyName, &p.AgreementDay,
			&p.PaymentDelay, &p.ReceivingDate, &p.PaymentAmount, &p.CreatedAt,
			&companyName, &companyUserID,
		); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		if companyName.Valid && companyUserID.Valid {
			p.Company = &CompanyRef{Name: companyName.String, UserID: companyUserID.UUID}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPaymentsByUser returns the user's payments, newest first — the order the
// dashboard table shows them in.
func (q *Queries) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type CreatePaymentParams struct {
	UserID        uuid.UUID
	CompanyID     uuid.UUID
	CompanyName   string
	AgreementDay  sql.NullTime
	PaymentDelay  sql.NullInt32
	ReceivingDate sql.NullTime
	PaymentAmount sql.NullFloat64
}

func (q *Queries) CreatePayment(ctx context.Context, p CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO payments (user_id, company_id, company_name, agreement_day,
		                      payment_delay, receiving_date, payment_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+paymentColumns,
		p.UserID, p.CompanyID, p.CompanyName, p.AgreementDay,
		p.PaymentDelay, p.ReceivingDate, p.PaymentAmount,
	)
	created, err := scanPayment(row)
	if err != nil {
		return Payment{}, fmt.Errorf("create payment: %w", err)
	}
	return created, nil
}

type UpdatePaymentParams struct {
	ID            uuid.UUID
	UserID        uuid.UUID // row must belong to this user
	CompanyName   string
	AgreementDay  sql.NullTime
	PaymentDelay  sql.NullInt32
	ReceivingDate sql.NullTime
	PaymentAmount sql.NullFloat64
}

// UpdatePayment is a full-row update keyed by id and owner. sql.ErrNoRows
// means the payment does not exist or belongs to someone else — callers treat
// both as not-found.
func (q *Queries) UpdatePayment(ctx context.Context, p UpdatePaymentParams) (Payment, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE payments
		SET company_name = $3, agreement_day = $4, payment_delay = $5,
		    receiving_date = $6, payment_amount = $7
		WHERE id = $1 AND user_id = $2
		RETURNING `+paymentColumns,
		p.ID, p.UserID, p.CompanyName, p.AgreementDay,
		p.PaymentDelay, p.ReceivingDate, p.PaymentAmount,
	)
	return scanPayment(row)
}

// DeletePayment removes one payment owned by the user. Returns sql.ErrNoRows
// when nothing matched.
func (q *Queries) DeletePayment(ctx context.Context, id, userID uuid.UUID) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM payments WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete payment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeletePayments removes a batch of the user's payments and returns how many
// rows were actually deleted. Ids belonging to other users are silently
// skipped by the owner filter.
func (q *Queries) DeletePayments(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM payments WHERE id = ANY($1) AND user_id = $2`,
		pq.Array(ids), userID)
	if err != nil {
		return 0, fmt.Errorf("delete payments batch: %w", err)
	}
	return res.RowsAffected()
}
