package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/classbook/internal/clock"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
)

// ReminderSource lists bookings due a reminder and records sent ones.
type ReminderSource interface {
	FindConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]model.ReminderTarget, error)
	MarkReminded(ctx context.Context, bookingID string, at time.Time) error
}

// ReminderSender delivers one reminder.
type ReminderSender interface {
	ClassReminder(ctx context.Context, t model.ReminderTarget) error
}

// Reminder mails users whose confirmed class starts within the reminder
// window. Each booking is reminded at most once.
type Reminder struct {
	bookings ReminderSource
	sender   ReminderSender
	clock    clock.Clock
	log      *slog.Logger
}

func NewReminder(bookings ReminderSource, sender ReminderSender, clk clock.Clock, log *slog.Logger) *Reminder {
	return &Reminder{bookings: bookings, sender: sender, clock: clk, log: log}
}

// RunOnce sends due reminders and returns how many were handed off. A
// failed send leaves the booking unmarked so the next pass retries it.
func (r *Reminder) RunOnce(ctx context.Context) (int, error) {
	now := r.clock.Now()
	due, err := r.bookings.FindConfirmedStartingBetween(ctx, now, now.Add(model.ReminderWindow))
	if err != nil {
		return 0, fmt.Errorf("find reminder targets: %w", err)
	}

	sent := 0
	for _, t := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := r.sender.ClassReminder(ctx, t); err != nil {
			r.log.Warn("reminder not sent", "booking_id", t.BookingID, "err", err)
			continue
		}
		if err := r.bookings.MarkReminded(ctx, t.BookingID, now); err != nil {
			r.log.Warn("mark reminded failed", "booking_id", t.BookingID, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}
