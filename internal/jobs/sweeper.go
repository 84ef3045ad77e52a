package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/classbook/internal/clock"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
)

// PendingFinder lists pending bookings created before a cutoff.
type PendingFinder interface {
	FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.Booking, error)
}

// Expirer cancels one booking if it is still expired under its lock.
type Expirer interface {
	Expire(ctx context.Context, bookingID string) (bool, error)
}

// Sweeper cancels pending bookings left unconfirmed past the grace period.
type Sweeper struct {
	bookings PendingFinder
	ledger   Expirer
	clock    clock.Clock
	log      *slog.Logger
}

func NewSweeper(bookings PendingFinder, ledger Expirer, clk clock.Clock, log *slog.Logger) *Sweeper {
	return &Sweeper{bookings: bookings, ledger: ledger, clock: clk, log: log}
}

// RunOnce expires every stale pending booking and returns how many were
// canceled. Each booking is handled in its own transaction, so one failure
// does not stop the pass. A booking confirmed between the scan and its
// turn is left alone.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-model.ExpiryGracePeriod)
	stale, err := s.bookings.FindPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale bookings: %w", err)
	}

	canceled := 0
	for _, b := range stale {
		if err := ctx.Err(); err != nil {
			return canceled, err
		}
		ok, err := s.ledger.Expire(ctx, b.ID)
		if err != nil {
			s.log.Warn("expire booking failed", "booking_id", b.ID, "err", err)
			continue
		}
		if ok {
			canceled++
			s.log.Info("booking expired", "booking_id", b.ID, "user_id", b.UserID, "class_id", b.ClassID)
		}
	}
	return canceled, nil
}
