package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/classbook/internal/auth"
	"github.com/Shivanand-hulikatti/classbook/internal/handler"
	"github.com/Shivanand-hulikatti/classbook/internal/jobs"
	"github.com/Shivanand-hulikatti/classbook/internal/notify"
	"github.com/Shivanand-hulikatti/classbook/internal/service"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API, plus the sweeper and reminder unless RUN_JOBS=false",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, "classbook-api")
			if err != nil {
				return err
			}
			defer a.close()

			if migrateUp {
				if err := a.migrate(ctx); err != nil {
					return err
				}
			}
			return runServer(ctx, a)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}

func runServer(ctx context.Context, a *app) error {
	if a.cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to run the server")
	}
	issuer, err := auth.NewIssuer(a.cfg.JWTSecret, a.cfg.JWTTTL(), a.clock)
	if err != nil {
		return err
	}

	sender, err := a.mailSender()
	if err != nil {
		return fmt.Errorf("mail transport: %w", err)
	}
	// Booking mail goes through the queue so requests never wait on delivery.
	queue := notify.NewQueue(sender, a.cfg.Mail.QueueSize, a.log)
	l, err := a.ledger(a.notifier(queue))
	if err != nil {
		return err
	}

	// ── Background workers ──────────────────────────────────────────────
	workCtx, stopWork := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(workCtx)
	}()
	if a.cfg.RunJobs {
		for _, r := range []*jobs.Runner{
			{Name: "expiry-sweeper", Interval: a.cfg.SweepInterval, Job: jobs.NewSweeper(a.bookings, l, a.clock, a.log), Log: a.log},
			// Reminders bypass the queue so reminded_at is only stamped once
			// the transport has accepted the mail.
			{Name: "class-reminder", Interval: a.cfg.ReminderInterval, Job: jobs.NewReminder(a.bookings, a.notifier(sender), a.clock, a.log), Log: a.log},
		} {
			r := r
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.Run(workCtx)
			}()
		}
	}

	// ── Router ──────────────────────────────────────────────────────────
	deps := handler.Deps{
		Classes:  handler.NewClassHandler(service.NewClassService(a.classes, a.bookings, a.clock, a.log), a.log),
		Bookings: handler.NewBookingHandler(l, a.log),
		Users:    handler.NewUserHandler(service.NewUserService(a.users, issuer, a.clock, a.log), a.log),
		Issuer:   issuer,
		Log:      a.log,
	}
	if a.pool != nil {
		deps.DB = a.pool
	}

	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stopWork()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)

	// Stop jobs and drain queued mail after the last request is done.
	stopWork()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
