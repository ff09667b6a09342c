// Package schedule contains the in-process daily trigger for the reminder
// run. It is intentionally decoupled from the HTTP layer and from the
// concrete reminder service: the Runner only knows the narrow Trigger
// interface, so tests drive it with a stub.
//
// The Runner is optional — deployments that already have an external cron
// hitting /api/reminders/run can disable it. Running both is harmless: the
// per-(user, date) claim rows make duplicate same-day dispatch a no-op.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nyashahama/payment-reminder-backend/internal/reminder"
)

// Trigger is the slice of the reminder service the Runner invokes.
type Trigger interface {
	Run(ctx context.Context) (reminder.RunReport, error)
}

// Config holds tuning parameters for the Runner.
type Config struct {
	// Hour is the local hour (0-23) at or after which the run fires.
	Hour int

	// Location is the zone Hour is evaluated in. Must match the zone the
	// reminder service computes "today" in.
	Location *time.Location

	// PollInterval is how often the runner checks whether it is time to fire.
	// Default: 1 minute.
	PollInterval time.Duration

	// RunTimeout is the per-run context deadline. Default: 5 minutes.
	RunTimeout time.Duration
}

// Runner fires the reminder run once per calendar day. A failed run is
// retried on the next poll tick — the claim rows guarantee users already
// emailed in a partial run are not emailed again.
type Runner struct {
	trigger Trigger
	cfg     Config
	logger  *slog.Logger

	wg sync.WaitGroup

	// now is swapped out in tests.
	now func() time.Time

	// lastRunDate is the ISO date of the last successful run. Only the
	// run loop goroutine touches it.
	lastRunDate string
}

// NewRunner constructs a Runner. Call Start() to begin polling.
func NewRunner(trigger Trigger, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}

	return &Runner{
		trigger: trigger,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Start launches the poll loop. It blocks until ctx is cancelled. Call it in
// a goroutine from main:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("schedule: starting",
		"hour", r.cfg.Hour,
		"zone", r.cfg.Location.String(),
		"poll_interval", r.cfg.PollInterval,
	)

	r.wg.Add(1)
	go r.loop(ctx)

	r.wg.Wait()
	r.logger.Info("schedule: stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// Check once immediately so a process started after the configured hour
	// still runs today.
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick fires the run when the local time has passed the configured hour and
// today's run has not succeeded yet.
func (r *Runner) tick(ctx context.Context) {
	now := r.now().In(r.cfg.Location)
	today := now.Format("2006-01-02")

	if now.Hour() < r.cfg.Hour || r.lastRunDate == today {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	report, err := r.trigger.Run(runCtx)
	cancel()

	if err != nil {
		// Leave lastRunDate unset so the next tick retries. Users already
		// handled before the failure hold their claims.
		r.logger.Error("schedule: run failed, will retry next tick", "error", err)
		return
	}

	r.lastRunDate = today
	r.logger.Info("schedule: daily run complete",
		"emails_sent", report.EmailsSent,
		"emails_failed", report.EmailsFailed,
	)
}
