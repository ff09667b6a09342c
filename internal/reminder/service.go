// Package reminder implements the due-date reminder run: fetch payments,
// select the set due today, group by owning user, resolve emails through the
// auth provider, and dispatch one aggregated email per user.
//
// The run is stateless per invocation — every run re-fetches payments and
// re-resolves identities. Same-day duplicate sends are prevented by claim
// rows in reminder_log, not by in-process state, so re-invoking the trigger
// on the same date is safe.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/payment-reminder-backend/internal/config"
	"github.com/nyashahama/payment-reminder-backend/internal/db"
	"github.com/nyashahama/payment-reminder-backend/internal/duedate"
	"github.com/nyashahama/payment-reminder-backend/internal/email"
	"github.com/nyashahama/payment-reminder-backend/internal/identity"
	"github.com/nyashahama/payment-reminder-backend/internal/store"
)

// RunRecorder persists the run summary once dispatching is done. *store.Store
// is the real implementation; tests inject a stub.
type RunRecorder interface {
	CompleteRun(ctx context.Context, p store.CompleteRunParams) (db.ReminderRun, error)
}

// Service holds the dependencies for the reminder pipeline. Each step is a
// separate function so they can be tested independently and Run reads like a
// description of the flow.
type Service struct {
	q      db.Querier
	runs   RunRecorder
	ids    identity.Client
	mailer email.Sender
	loc    *time.Location
	env    config.Presence
	logger *slog.Logger

	// Now returns the current time. Overridden in tests to pin "today".
	Now func() time.Time
}

// NewService constructs a Service with all required dependencies.
func NewService(
	q db.Querier,
	runs RunRecorder,
	ids identity.Client,
	mailer email.Sender,
	loc *time.Location,
	env config.Presence,
	logger *slog.Logger,
) *Service {
	return &Service{
		q:      q,
		runs:   runs,
		ids:    ids,
		mailer: mailer,
		loc:    loc,
		env:    env,
		logger: logger,
		Now:    time.Now,
	}
}

// ─── DUE-SET SELECTION ───────────────────────────────────────────────────────

// dueSelection is the outcome of one pass over the fetched payments.
type dueSelection struct {
	due           []db.PaymentWithCompany // receiving_date == today; each payment at most once
	dueCalculated int                     // legacy recomputation says due today
	divergent     int                     // the two predicates disagree
}

// selectDueToday applies the primary rule — a payment is due today iff its
// stored receiving_date equals today — in a single pass. The legacy
// recomputation from agreement_day + payment_delay is evaluated alongside it
// purely as a diagnostic: a disagreement is counted, never acted on.
func selectDueToday(payments []db.PaymentWithCompany, today time.Time) dueSelection {
	todayISO := today.Format(duedate.ISODate)
	var sel dueSelection

	for _, p := range payments {
		actual := p.ReceivingDate.Valid &&
			p.ReceivingDate.Time.Format(duedate.ISODate) == todayISO

		calculated := false
		if p.AgreementDay.Valid {
			delay := int(p.PaymentDelay.Int32) // zero when null
			derived := duedate.DueDate(p.AgreementDay.Time.Day(), delay,
				today.Year(), today.Month(), today.Location())
			calculated = duedate.SameDay(derived, today)
		}

		if actual {
			sel.due = append(sel.due, p)
		}
		if calculated {
			sel.dueCalculated++
		}
		if actual != calculated {
			sel.divergent++
		}
	}

	return sel
}

// groupByOwner buckets due payments by their owning user. The owner is the
// company owner when the join row is present, the payment's user otherwise.
func groupByOwner(due []db.PaymentWithCompany) map[uuid.UUID][]db.PaymentWithCompany {
	groups := make(map[uuid.UUID][]db.PaymentWithCompany)
	for _, p := range due {
		owner := p.OwnerID()
		groups[owner] = append(groups[owner], p)
	}
	return groups
}

// sortedOwners returns the group keys in a stable order so dispatch order and
// the results list are deterministic.
func sortedOwners(groups map[uuid.UUID][]db.PaymentWithCompany) []uuid.UUID {
	owners := make([]uuid.UUID, 0, len(groups))
	for owner := range groups {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].String() < owners[j].String()
	})
	return owners
}

// ─── RUN ─────────────────────────────────────────────────────────────────────

// Run executes one reminder run and returns its report. Only two failures are
// fatal: the payment fetch and the bulk identity listing. Everything after
// that degrades per user.
func (s *Service) Run(ctx context.Context) (RunReport, error) {
	now := s.Now()
	today := duedate.Today(now, s.loc)
	log := s.logger.With("run_date", today.Format(duedate.ISODate))
	log.Info("reminder: run starting")

	// ── 1. Fetch candidate payments ───────────────────────────────────────────
	payments, err := s.q.ListPaymentsDueFrom(ctx, today)
	if err != nil {
		return RunReport{}, fmt.Errorf("reminder: fetch payments: %w", err)
	}

	// ── 2. Select the due set ─────────────────────────────────────────────────
	sel := selectDueToday(payments, today)
	log.Info("reminder: due set selected",
		"fetched", len(payments),
		"due", len(sel.due),
		"due_calculated", sel.dueCalculated,
		"divergent", sel.divergent,
	)

	report := RunReport{
		Success:       true,
		TotalFetched:  len(payments),
		DueToday:      len(sel.due),
		DueCalculated: sel.dueCalculated,
		Divergent:     sel.divergent,
		Results:       []EmailResult{},
	}

	if len(sel.due) == 0 {
		report.Message = "No payments due today"
		s.recordRun(ctx, today, report, log)
		return report, nil
	}

	// ── 3. Group by owning user ───────────────────────────────────────────────
	groups := groupByOwner(sel.due)

	// ── 4. Resolve emails via the bulk identity listing ───────────────────────
	// The provider has no per-id lookup; list everything and filter. A failure
	// here aborts the run — dispatching without knowing valid emails would be
	// guesswork.
	users, err := s.ids.ListUsers(ctx)
	if err != nil {
		return RunReport{}, fmt.Errorf("reminder: list users: %w", err)
	}

	emailByID := make(map[string]string, len(users))
	for _, u := range users {
		if u.Email != "" {
			emailByID[u.ID] = u.Email
		}
	}

	// Drop groups whose owner has no resolvable email — excluded from
	// dispatch but counted, never silently lost.
	owners := sortedOwners(groups)
	dispatchable := owners[:0]
	for _, owner := range owners {
		if _, ok := emailByID[owner.String()]; ok {
			dispatchable = append(dispatchable, owner)
			continue
		}
		report.UnresolvedPayments += len(groups[owner])
		log.Warn("reminder: no email for user, excluding group",
			"user_id", owner, "payments", len(groups[owner]))
	}
	report.UserGroups = len(dispatchable)

	// ── 5. Dispatch one email per user group ──────────────────────────────────
	for _, owner := range dispatchable {
		s.dispatch(ctx, owner, emailByID[owner.String()], groups[owner], today, &report, log)
	}

	report.Message = fmt.Sprintf("Processed %d due payments for %d users",
		len(sel.due), len(groups))

	log.Info("reminder: run complete",
		"emails_sent", report.EmailsSent,
		"emails_failed", report.EmailsFailed,
		"skipped", report.SkippedNotified,
		"unresolved", report.UnresolvedPayments,
	)

	// ── 6. Persist the run summary ────────────────────────────────────────────
	s.recordRun(ctx, today, report, log)

	return report, nil
}

// dispatch sends one user's aggregated reminder and records the outcome in
// the report. A delivery failure is captured per user and never aborts the
// loop over remaining users.
func (s *Service) dispatch(
	ctx context.Context,
	owner uuid.UUID,
	to string,
	group []db.PaymentWithCompany,
	today time.Time,
	report *RunReport,
	log *slog.Logger,
) {
	// Same-day dedup: the claim row is unique per (user, date). Losing the
	// claim means another invocation already handled this user today.
	claimed, err := s.q.ClaimReminder(ctx, owner, today)
	if err != nil {
		report.EmailsFailed++
		report.Results = append(report.Results, EmailResult{
			UserID:       owner.String(),
			Email:        to,
			PaymentCount: len(group),
			Error:        fmt.Sprintf("claim reminder: %v", err),
		})
		return
	}
	if !claimed {
		report.SkippedNotified++
		log.Info("reminder: user already notified today, skipping", "user_id", owner)
		return
	}

	lines := make([]email.ReminderPayment, len(group))
	for i, p := range group {
		line := email.ReminderPayment{
			CompanyName: p.CompanyName,
			Amount:      p.PaymentAmount.Float64,
			DelayDays:   int(p.PaymentDelay.Int32),
		}
		if p.Company != nil && p.Company.Name != "" {
			line.CompanyName = p.Company.Name
		}
		if p.ReceivingDate.Valid {
			line.DueDate = p.ReceivingDate.Time
		}
		if p.AgreementDay.Valid {
			line.AgreementDay = p.AgreementDay.Time.Day()
		} else if p.ReceivingDate.Valid {
			// Legacy rows without an agreement date: the receiving day is the
			// best anchor available for display.
			line.AgreementDay = p.ReceivingDate.Time.Day()
		}
		lines[i] = line
	}

	msgID, err := s.mailer.SendPaymentReminder(ctx, email.ReminderParams{
		To:       to,
		Payments: lines,
	})
	if err != nil {
		log.Error("reminder: send failed", "user_id", owner, "to", to, "error", err)
		report.EmailsFailed++
		report.Results = append(report.Results, EmailResult{
			UserID:       owner.String(),
			Email:        to,
			PaymentCount: len(group),
			Error:        err.Error(),
		})
		// Release the claim so the next run can retry this user.
		if relErr := s.q.ReleaseReminder(ctx, owner, today); relErr != nil {
			log.Error("reminder: release claim failed", "user_id", owner, "error", relErr)
		}
		return
	}

	report.EmailsSent++
	report.Results = append(report.Results, EmailResult{
		UserID:       owner.String(),
		Email:        to,
		PaymentCount: len(group),
		Success:      true,
		Result:       msgID,
	})
	log.Info("reminder: email sent", "user_id", owner, "to", to, "payments", len(group))

	if err := s.q.RecordReminderOutcome(ctx, db.RecordReminderOutcomeParams{
		UserID:       owner,
		RunDate:      today,
		Email:        to,
		PaymentCount: int32(len(group)),
	}); err != nil {
		// The email went out; a bookkeeping failure is logged, not surfaced.
		log.Error("reminder: record outcome failed", "user_id", owner, "error", err)
	}
}

// recordRun persists the run summary. The emails are already out by the time
// this runs, so a persistence failure is logged rather than failing the run.
func (s *Service) recordRun(ctx context.Context, today time.Time, report RunReport, log *slog.Logger) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		log.Error("reminder: marshal run report", "error", err)
		reportJSON = nil
	}

	if _, err := s.runs.CompleteRun(ctx, store.CompleteRunParams{
		RunDate:       today,
		TotalFetched:  report.TotalFetched,
		DueActual:     report.DueToday,
		DueCalculated: report.DueCalculated,
		Divergent:     report.Divergent,
		UserGroups:    report.UserGroups,
		EmailsSent:    report.EmailsSent,
		EmailsFailed:  report.EmailsFailed,
		ReportJSON:    reportJSON,
	}); err != nil {
		log.Error("reminder: persist run summary failed", "error", err)
	}
}

// ─── DEBUG ───────────────────────────────────────────────────────────────────

// Debug runs the selection and resolution steps with full per-payment tracing
// and sends nothing. Identity failure is non-fatal here — the point of the
// endpoint is to show what is wrong.
func (s *Service) Debug(ctx context.Context) (DebugReport, error) {
	now := s.Now()
	today := duedate.Today(now, s.loc)
	todayISO := today.Format(duedate.ISODate)

	payments, err := s.q.ListPaymentsDueFrom(ctx, today)
	if err != nil {
		return DebugReport{}, fmt.Errorf("reminder: fetch payments: %w", err)
	}

	traces := make([]PaymentTrace, len(payments))
	dueActual, dueCalculated, divergent := 0, 0, 0
	dueOwners := make(map[string]bool)

	for i, p := range payments {
		t := PaymentTrace{
			ID:           p.ID.String(),
			CompanyName:  p.CompanyName,
			Amount:       p.PaymentAmount.Float64,
			PaymentDelay: int(p.PaymentDelay.Int32),
		}
		if p.AgreementDay.Valid {
			t.AgreementDayDB = p.AgreementDay.Time.Format(duedate.ISODate)
			t.AgreementDayNum = p.AgreementDay.Time.Day()
			derived := duedate.DueDate(t.AgreementDayNum, t.PaymentDelay,
				today.Year(), today.Month(), today.Location())
			t.CalculatedDueDate = derived.Format(duedate.ISODate)
			t.IsDueTodayCalculated = duedate.SameDay(derived, today)
		}
		if p.ReceivingDate.Valid {
			t.ReceivingDate = p.ReceivingDate.Time.Format(duedate.ISODate)
			t.IsDueTodayActual = t.ReceivingDate == todayISO
		}
		t.Divergent = t.IsDueTodayActual != t.IsDueTodayCalculated
		if p.Company != nil {
			t.CompanyUserID = p.Company.UserID.String()
		}

		if t.IsDueTodayActual {
			dueActual++
			dueOwners[p.OwnerID().String()] = true
		}
		if t.IsDueTodayCalculated {
			dueCalculated++
		}
		if t.Divergent {
			divergent++
		}
		traces[i] = t
	}

	report := DebugReport{
		Success: true,
		DebugInfo: DebugInfo{
			RunTimestamp:  now.Format(time.RFC3339),
			CurrentDate:   todayISO,
			TotalFetched:  len(payments),
			DueActual:     dueActual,
			DueCalculated: dueCalculated,
			Divergent:     divergent,
		},
		Payments:    traces,
		UserEmails:  map[string]string{},
		Environment: s.env,
	}

	if len(dueOwners) > 0 {
		users, err := s.ids.ListUsers(ctx)
		if err != nil {
			report.IdentityError = err.Error()
			s.logger.Error("reminder: debug identity lookup failed", "error", err)
		} else {
			for _, u := range users {
				if dueOwners[u.ID] && u.Email != "" {
					report.UserEmails[u.ID] = u.Email
				}
			}
		}
	}
	report.DebugInfo.UserEmailsFound = len(report.UserEmails)

	return report, nil
}
