package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nyashahama/payment-reminder-backend/internal/db"
	"github.com/sqlc-dev/pqtype"
)

// CompleteRunParams is everything the reminder service hands over once the
// dispatch loop has finished.
type CompleteRunParams struct {
	RunDate       time.Time
	TotalFetched  int
	DueActual     int
	DueCalculated int
	Divergent     int
	UserGroups    int
	EmailsSent    int
	EmailsFailed  int
	ReportJSON    []byte // full serialised RunReport; may be nil
}

// CompleteRun atomically:
//
//  1. Inserts the reminder_runs summary row.
//  2. Stamps the new run id onto the day's unlinked reminder_log claims.
//
// If either step fails the transaction rolls back: the claims stay unlinked
// and the next successful run adopts them, so no log entry is ever orphaned
// to a run row that does not exist.
func (s *Store) CompleteRun(ctx context.Context, p CompleteRunParams) (db.ReminderRun, error) {
	var run db.ReminderRun

	err := s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		inserted, err := q.InsertReminderRun(ctx, db.InsertReminderRunParams{
			RunDate:       p.RunDate,
			TotalFetched:  int32(p.TotalFetched),
			DueActual:     int32(p.DueActual),
			DueCalculated: int32(p.DueCalculated),
			Divergent:     int32(p.Divergent),
			UserGroups:    int32(p.UserGroups),
			EmailsSent:    int32(p.EmailsSent),
			EmailsFailed:  int32(p.EmailsFailed),
			Report: pqtype.NullRawMessage{
				RawMessage: p.ReportJSON,
				Valid:      len(p.ReportJSON) > 0,
			},
		})
		if err != nil {
			return fmt.Errorf("CompleteRun: insert run: %w", err)
		}

		if err := q.LinkRunEntries(ctx, inserted.ID, p.RunDate); err != nil {
			return fmt.Errorf("CompleteRun: link entries: %w", err)
		}

		run = inserted
		return nil
	})
	if err != nil {
		return db.ReminderRun{}, err
	}

	return run, nil
}
