package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetCompanyByUserID returns the user's single company profile.
// sql.ErrNoRows when the user has not completed sign-up.
func (q *Queries) GetCompanyByUserID(ctx context.Context, userID uuid.UUID) (Company, error) {
	var c Company
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM companies
		WHERE user_id = $1
	`, userID).Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt)
	return c, err
}

type CreateCompanyParams struct {
	UserID uuid.UUID
	Name   string
}

// CreateCompany inserts the sign-up profile row. The unique constraint on
// user_id enforces one company per user; a second insert fails with a
// pq unique violation.
func (q *Queries) CreateCompany(ctx context.Context, p CreateCompanyParams) (Company, error) {
	var c Company
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO companies (user_id, name)
		VALUES ($1, $2)
		RETURNING id, user_id, name, created_at
	`, p.UserID, p.Name).Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt)
	if err != nil {
		return Company{}, fmt.Errorf("create company: %w", err)
	}
	return c, nil
}
