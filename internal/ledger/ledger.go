// Package ledger is the booking core: it owns booking records, enforces the
// status lifecycle, the one-active-booking rule, the capacity limit and the
// timing rules, and takes the locks that make them hold under concurrency.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/classbook/internal/clock"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
)

// Errors returned by ledger operations. All are expected outcomes that the
// API layer maps to a response; none is fatal.
var (
	ErrTooLateToBook   = errors.New("you can only book a class at least one hour in advance")
	ErrAlreadyBooked   = errors.New("you have already booked this class")
	ErrClassFull       = errors.New("this class is fully booked")
	ErrClassNotFound   = errors.New("class not found")
	ErrNotFound        = errors.New("booking not found")
	ErrForbidden       = errors.New("you do not have permission to cancel this booking")
	ErrBookingCanceled = errors.New("booking has been canceled")
	// ErrLockTimeout means a concurrent operation held the lock too long.
	// Retry the whole operation.
	ErrLockTimeout = repository.ErrLockTimeout
)

// Notifier receives booking events after they are committed.
type Notifier interface {
	BookingRequested(ctx context.Context, user model.User, class model.ClassSession, b model.Booking)
}

// UserLookup resolves the recipient of booking mail.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// CapacityPolicy selects which bookings occupy a seat when CreateBooking
// compares against capacity.
type CapacityPolicy string

const (
	// CountConfirmed counts confirmed bookings only. Pending bookings do not
	// hold a seat, so a class can collect more pending bookings than seats.
	CountConfirmed CapacityPolicy = "confirmed"
	// CountActive counts pending and confirmed bookings, so the confirmed
	// count can never pass capacity.
	CountActive CapacityPolicy = "active"
)

// ParseCapacityPolicy accepts "confirmed", "active" or "" (confirmed).
func ParseCapacityPolicy(s string) (CapacityPolicy, error) {
	switch CapacityPolicy(s) {
	case "", CountConfirmed:
		return CountConfirmed, nil
	case CountActive:
		return CountActive, nil
	}
	return "", fmt.Errorf("unknown capacity policy %q", s)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCapacityPolicy overrides the default CountConfirmed policy.
func WithCapacityPolicy(p CapacityPolicy) Option {
	return func(l *Ledger) { l.policy = p }
}

// Ledger runs booking operations against a BookingStore.
type Ledger struct {
	store    repository.BookingStore
	users    UserLookup
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
	tracer   trace.Tracer
	policy   CapacityPolicy
}

// New constructs a Ledger.
func New(store repository.BookingStore, users UserLookup, notifier Notifier, clk clock.Clock, log *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		users:    users,
		notifier: notifier,
		clock:    clk,
		log:      log,
		tracer:   otel.Tracer("github.com/Shivanand-hulikatti/classbook/internal/ledger"),
		policy:   CountConfirmed,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateBooking reserves a pending slot for userID in classID.
//
// Inside one transaction holding the class lock it checks, in order: the
// one-hour cutoff, an existing active booking for the pair, and the seats
// taken under the capacity policy. The first failing check decides the
// error. The booking-requested mail goes out only after commit.
func (l *Ledger) CreateBooking(ctx context.Context, userID, classID string) (b *model.Booking, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.CreateBooking",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("class.id", classID)))
	defer func() { endSpan(span, err) }()

	now := l.clock.Now()
	var class model.ClassSession

	err = l.store.InTx(ctx, func(tx repository.BookingTx) error {
		c, err := tx.LockClass(ctx, classID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrClassNotFound
			}
			return err
		}
		if !model.CanBook(*c, now) {
			return ErrTooLateToBook
		}

		active, err := tx.HasActiveBooking(ctx, userID, classID)
		if err != nil {
			return err
		}
		if active {
			return ErrAlreadyBooked
		}

		taken, err := l.seatsTaken(ctx, tx, classID)
		if err != nil {
			return err
		}
		if taken >= c.Capacity {
			return ErrClassFull
		}

		nb := &model.Booking{
			ID:        uuid.New().String(),
			UserID:    userID,
			ClassID:   classID,
			Status:    model.StatusPending,
			CreatedAt: now,
		}
		if err := tx.InsertBooking(ctx, nb); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyBooked
			}
			return err
		}
		b, class = nb, *c
		return nil
	})
	if err != nil {
		return nil, wrap("create booking", err)
	}

	l.log.Info("booking created", "booking_id", b.ID, "user_id", userID, "class_id", classID)
	l.notifyRequested(ctx, *b, class)
	return b, nil
}

// CancelBooking cancels a booking owned by userID from any status.
// Cancelling an already canceled booking succeeds and changes nothing.
func (l *Ledger) CancelBooking(ctx context.Context, bookingID, userID string) (b *model.Booking, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.CancelBooking",
		trace.WithAttributes(attribute.String("booking.id", bookingID), attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	var prev model.BookingStatus
	err = l.store.InTx(ctx, func(tx repository.BookingTx) error {
		cur, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if cur.UserID != userID {
			return ErrForbidden
		}
		prev = cur.Status
		if cur.Status == model.StatusCanceled {
			b = cur
			return nil
		}
		cur.Cancel()
		if err := tx.UpdateBooking(ctx, cur); err != nil {
			return err
		}
		b = cur
		return nil
	})
	if err != nil {
		return nil, wrap("cancel booking", err)
	}

	l.log.Info("booking canceled", "booking_id", bookingID, "previous_status", prev)
	return b, nil
}

// ConfirmAttendance confirms a booking owned by userID. A booking owned by
// someone else is reported as not found. Capacity is not re-checked here.
func (l *Ledger) ConfirmAttendance(ctx context.Context, bookingID, userID string) (b *model.Booking, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.ConfirmAttendance",
		trace.WithAttributes(attribute.String("booking.id", bookingID), attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	now := l.clock.Now()
	err = l.store.InTx(ctx, func(tx repository.BookingTx) error {
		cur, err := tx.LockOwnedBooking(ctx, bookingID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if cur.Status == model.StatusConfirmed {
			b = cur
			return nil
		}
		if err := cur.Confirm(now); err != nil {
			return ErrBookingCanceled
		}
		if err := tx.UpdateBooking(ctx, cur); err != nil {
			return err
		}
		b = cur
		return nil
	})
	if err != nil {
		return nil, wrap("confirm attendance", err)
	}

	l.log.Info("attendance confirmed", "booking_id", bookingID)
	return b, nil
}

// Expire cancels a booking if it is still pending past the grace period.
// The check is repeated under the row lock, so a confirmation that wins
// the race keeps the booking alive. It reports whether the booking expired.
func (l *Ledger) Expire(ctx context.Context, bookingID string) (expired bool, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.Expire", trace.WithAttributes(attribute.String("booking.id", bookingID)))
	defer func() { endSpan(span, err) }()

	now := l.clock.Now()
	err = l.store.InTx(ctx, func(tx repository.BookingTx) error {
		cur, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !cur.IsExpired(now) {
			return nil
		}
		cur.Cancel()
		if err := tx.UpdateBooking(ctx, cur); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, wrap("expire booking", err)
	}
	return expired, nil
}

// GetBooking returns one of userID's bookings.
func (l *Ledger) GetBooking(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	b, err := l.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b.UserID != userID {
		return nil, ErrNotFound
	}
	return b, nil
}

// ListBookings returns userID's bookings, newest first.
func (l *Ledger) ListBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	bookings, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// IsExpired reports whether b should be auto-cancelled at the ledger's now.
func (l *Ledger) IsExpired(b model.Booking) bool {
	return b.IsExpired(l.clock.Now())
}

// CanBook reports whether c still takes bookings at the ledger's now.
func (l *Ledger) CanBook(c model.ClassSession) bool {
	return model.CanBook(c, l.clock.Now())
}

func (l *Ledger) seatsTaken(ctx context.Context, tx repository.BookingTx, classID string) (int, error) {
	if l.policy == CountActive {
		return tx.CountActive(ctx, classID)
	}
	return tx.CountConfirmed(ctx, classID)
}

// notifyRequested runs after commit with no lock held. Mail problems are
// logged by the notifier and never reach the caller.
func (l *Ledger) notifyRequested(ctx context.Context, b model.Booking, class model.ClassSession) {
	u, err := l.users.GetByID(ctx, b.UserID)
	if err != nil {
		l.log.Warn("booking mail skipped: user lookup failed", "booking_id", b.ID, "err", err)
		return
	}
	l.notifier.BookingRequested(ctx, *u, class, b)
}

var expected = []error{
	ErrTooLateToBook, ErrAlreadyBooked, ErrClassFull, ErrClassNotFound,
	ErrNotFound, ErrForbidden, ErrBookingCanceled, ErrLockTimeout,
}

// wrap keeps domain errors bare so callers can compare them directly and
// adds context to storage failures.
func wrap(op string, err error) error {
	for _, e := range expected {
		if errors.Is(err, e) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
