// Package jobs holds the periodic background work of the booking system:
// expiring unconfirmed bookings and sending class reminders.
package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Job is one pass of a periodic task. It returns how many items it handled.
type Job interface {
	RunOnce(ctx context.Context) (int, error)
}

// Runner calls a Job on a fixed interval until its context is done.
type Runner struct {
	Name     string
	Interval time.Duration
	Job      Job
	Log      *slog.Logger
}

// Run blocks until ctx is done. A failed pass is logged and the next tick
// tries again.
func (r *Runner) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	// kick immediately
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	n, err := r.Job.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.Log.Error("job pass failed", "job", r.Name, "err", err)
		return
	}
	r.Log.Debug("job pass done", "job", r.Name, "handled", n, "took", time.Since(start))
}
