package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/classbook/internal/jobs"
	"github.com/Shivanand-hulikatti/classbook/internal/notify"
)

// newSweepCmd runs the expiry sweeper once, or forever with --loop. Use it
// from cron when the server runs with RUN_JOBS=false.
func newSweepCmd() *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cancel pending bookings left unconfirmed for more than 15 minutes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, "classbook-sweeper")
			if err != nil {
				return err
			}
			defer a.close()

			// Expiry sends no mail.
			l, err := a.ledger(a.notifier(notify.LogSender{Log: a.log}))
			if err != nil {
				return err
			}
			job := jobs.NewSweeper(a.bookings, l, a.clock, a.log)
			return runJob(ctx, cmd, a, "expiry-sweeper", job, loop, a.cfg.SweepInterval)
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "keep running every SWEEP_INTERVAL")
	return cmd
}

func newRemindCmd() *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Email users whose confirmed class starts within 24 hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, "classbook-reminder")
			if err != nil {
				return err
			}
			defer a.close()

			sender, err := a.mailSender()
			if err != nil {
				return err
			}
			job := jobs.NewReminder(a.bookings, a.notifier(sender), a.clock, a.log)
			return runJob(ctx, cmd, a, "class-reminder", job, loop, a.cfg.ReminderInterval)
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "keep running every REMINDER_INTERVAL")
	return cmd
}

func runJob(ctx context.Context, cmd *cobra.Command, a *app, name string, job jobs.Job, loop bool, every time.Duration) error {
	if loop {
		r := &jobs.Runner{Name: name, Interval: every, Job: job, Log: a.log}
		a.log.Info("job loop started", "job", name, "every", every)
		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
	n, err := job.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d handled\n", name, n)
	return nil
}
