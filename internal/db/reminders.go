package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// ClaimReminder inserts the (user, date) claim row and reports whether this
// call won it. ON CONFLICT DO NOTHING makes the claim race-safe across
// concurrent or repeated invocations on the same day: only one caller gets
// true, everyone else must skip the user.
func (q *Queries) ClaimReminder(ctx context.Context, userID uuid.UUID, runDate time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO reminder_log (user_id, run_date)
		VALUES ($1, $2)
		ON CONFLICT (user_id, run_date) DO NOTHING
	`, userID, runDate.Format("2006-01-02"))
	if err != nil {
		return false, fmt.Errorf("claim reminder for %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseReminder deletes a claim after a failed send so the next run can
// retry this user.
func (q *Queries) ReleaseReminder(ctx context.Context, userID uuid.UUID, runDate time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM reminder_log
		WHERE user_id = $1 AND run_date = $2 AND run_id IS NULL
	`, userID, runDate.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("release reminder for %s: %w", userID, err)
	}
	return nil
}

type RecordReminderOutcomeParams struct {
	UserID       uuid.UUID
	RunDate      time.Time
	Email        string
	PaymentCount int32
}

// RecordReminderOutcome fills in the claim row after a successful send.
func (q *Queries) RecordReminderOutcome(ctx context.Context, p RecordReminderOutcomeParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE reminder_log
		SET email = $3, payment_count = $4
		WHERE user_id = $1 AND run_date = $2
	`, p.UserID, p.RunDate.Format("2006-01-02"),
		sql.NullString{String: p.Email, Valid: p.Email != ""},
		sql.NullInt32{Int32: p.PaymentCount, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("record reminder outcome for %s: %w", p.UserID, err)
	}
	return nil
}

type InsertReminderRunParams struct {
	RunDate       time.Time
	TotalFetched  int32
	DueActual     int32
	DueCalculated int32
	Divergent     int32
	UserGroups    int32
	EmailsSent    int32
	EmailsFailed  int32
	Report        pqtype.NullRawMessage
}

// InsertReminderRun writes the per-run summary row, keeping the full JSON
// report alongside the counts for later inspection.
func (q *Queries) InsertReminderRun(ctx context.Context, p InsertReminderRunParams) (ReminderRun, error) {
	var r ReminderRun
	var report pqtype.NullRawMessage
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO reminder_runs (run_date, total_fetched, due_actual, due_calculated,
		                           divergent, user_groups, emails_sent, emails_failed, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, run_date, total_fetched, due_actual, due_calculated,
		          divergent, user_groups, emails_sent, emails_failed, report, created_at
	`, p.RunDate.Format("2006-01-02"), p.TotalFetched, p.DueActual, p.DueCalculated,
		p.Divergent, p.UserGroups, p.EmailsSent, p.EmailsFailed, p.Report,
	).Scan(&r.ID, &r.RunDate, &r.TotalFetched, &r.DueActual, &r.DueCalculated,
		&r.Divergent, &r.UserGroups, &r.EmailsSent, &r.EmailsFailed, &report, &r.CreatedAt)
	if err != nil {
		return ReminderRun{}, fmt.Errorf("insert reminder run: %w", err)
	}
	if report.Valid {
		r.Report = report.RawMessage
	}
	return r, nil
}

// LinkRunEntries stamps the run id onto the day's unlinked reminder_log rows.
// Called in the same transaction as InsertReminderRun (store.CompleteRun).
func (q *Queries) LinkRunEntries(ctx context.Context, runID uuid.UUID, runDate time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE reminder_log
		SET run_id = $1
		WHERE run_date = $2 AND run_id IS NULL
	`, runID, runDate.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("link run entries: %w", err)
	}
	return nil
}
