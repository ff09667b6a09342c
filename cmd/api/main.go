package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/nyashahama/payment-reminder-backend/internal/api"
	"github.com/nyashahama/payment-reminder-backend/internal/config"
	"github.com/nyashahama/payment-reminder-backend/internal/db"
	"github.com/nyashahama/payment-reminder-backend/internal/email"
	"github.com/nyashahama/payment-reminder-backend/internal/identity"
	"github.com/nyashahama/payment-reminder-backend/internal/reminder"
	"github.com/nyashahama/payment-reminder-backend/internal/schedule"
	"github.com/nyashahama/payment-reminder-backend/internal/store"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "timezone", cfg.Timezone)

	if cfg.ResendAPIKey == "" {
		// Not fatal: due-date computation and the debug endpoint still work,
		// every send will just fail per user until the key is set.
		logger.Warn("RESEND_API_KEY not set — reminder emails will fail to send")
	}

	// ── Database ──────────────────────────────────────────────────────────────
	pool, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	queries := db.New(pool)
	st := store.New(pool, queries)

	// ── External collaborators ────────────────────────────────────────────────
	ids := identity.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	mailer := email.NewResendClient(cfg.ResendAPIKey, cfg.FromEmail, cfg.EmailFromName)

	// ── Reminder service ──────────────────────────────────────────────────────
	svc := reminder.NewService(queries, st, ids, mailer,
		cfg.Location(), cfg.CheckPresence(), logger)

	// ── Scheduler ─────────────────────────────────────────────────────────────
	runner := schedule.NewRunner(svc, schedule.Config{
		Hour:         cfg.ReminderHour,
		Location:     cfg.Location(),
		PollInterval: cfg.PollInterval,
	}, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(queries, svc, ids, api.Config{Env: cfg.Env}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generous — a run dispatches every due email inline
		IdleTimeout:  120 * time.Second,
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Root context cancelled by OS signal. Scheduler and HTTP server both
	// respect it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SchedulerEnabled {
		go runner.Start(ctx)
	} else {
		logger.Info("scheduler disabled — reminder runs only fire via HTTP trigger")
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Give in-flight HTTP requests up to 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// openDB opens the connection pool and verifies it is reachable before the
// server starts taking traffic.
func openDB(dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	// Tune the connection pool.
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}
