package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/nyashahama/payment-reminder-backend/internal/db"
	"github.com/nyashahama/payment-reminder-backend/internal/store"
)

// testStore connects to the database named by TEST_DATABASE_URL, which must
// already have the schema applied. Skipped otherwise, so the suite stays
// runnable without infrastructure.
func testStore(t *testing.T) (*store.Store, *sql.DB) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping store integration tests")
	}

	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	return store.New(pool, db.New(pool)), pool
}

func TestClaimReminder_SecondClaimLoses(t *testing.T) {
	st, pool := testStore(t)
	ctx := context.Background()
	q := st.Q()

	userID := uuid.New()
	runDate := time.Date(2030, time.January, 15, 0, 0, 0, 0, time.UTC)
	t.Cleanup(func() {
		pool.ExecContext(context.Background(),
			`DELETE FROM reminder_log WHERE user_id = $1`, userID)
	})

	claimed, err := q.ClaimReminder(ctx, userID, runDate)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim lost")
	}

	claimed, err = q.ClaimReminder(ctx, userID, runDate)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Error("second claim for the same (user, date) must lose")
	}

	// A release makes the slot claimable again — the retry path.
	if err := q.ReleaseReminder(ctx, userID, runDate); err != nil {
		t.Fatalf("release: %v", err)
	}
	claimed, err = q.ClaimReminder(ctx, userID, runDate)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !claimed {
		t.Error("claim after release must win")
	}
}

func TestCompleteRun_LinksDayClaims(t *testing.T) {
	st, pool := testStore(t)
	ctx := context.Background()
	q := st.Q()

	userID := uuid.New()
	runDate := time.Date(2030, time.January, 16, 0, 0, 0, 0, time.UTC)
	t.Cleanup(func() {
		pool.ExecContext(context.Background(),
			`DELETE FROM reminder_log WHERE user_id = $1`, userID)
		pool.ExecContext(context.Background(),
			`DELETE FROM reminder_runs WHERE run_date = $1`, runDate)
	})

	if _, err := q.ClaimReminder(ctx, userID, runDate); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.RecordReminderOutcome(ctx, db.RecordReminderOutcomeParams{
		UserID:       userID,
		RunDate:      runDate,
		Email:        "user@example.com",
		PaymentCount: 2,
	}); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	reportJSON, _ := json.Marshal(map[string]any{"success": true})
	run, err := st.CompleteRun(ctx, store.CompleteRunParams{
		RunDate:      runDate,
		TotalFetched: 3,
		DueActual:    2,
		UserGroups:   1,
		EmailsSent:   1,
		ReportJSON:   reportJSON,
	})
	if err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	if run.ID == uuid.Nil {
		t.Fatal("run id not assigned")
	}
	if run.TotalFetched != 3 || run.EmailsSent != 1 {
		t.Errorf("run = %+v", run)
	}

	// The day's claim row now carries the run id.
	var linked uuid.NullUUID
	err = pool.QueryRowContext(ctx,
		`SELECT run_id FROM reminder_log WHERE user_id = $1 AND run_date = $2`,
		userID, runDate.Format("2006-01-02")).Scan(&linked)
	if err != nil {
		t.Fatalf("read claim row: %v", err)
	}
	if !linked.Valid || linked.UUID != run.ID {
		t.Errorf("claim run_id = %v, want %s", linked, run.ID)
	}
}
