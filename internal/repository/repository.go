// Package repository defines the storage contracts of the booking system and
// implements them on PostgreSQL. It uses pgx directly (no ORM).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write violates a uniqueness rule.
var ErrDuplicate = errors.New("already exists")

// ErrLockTimeout is returned when a row or class lock could not be acquired
// in time. The whole operation may be retried.
var ErrLockTimeout = errors.New("lock wait timed out")

// BookingTx is the view of booking storage inside one transaction. Locks
// taken through it are held until the transaction ends, and nothing it
// writes is visible to others before commit.
type BookingTx interface {
	// LockClass takes the per-class lock that serialises capacity checks
	// and returns the class.
	LockClass(ctx context.Context, classID string) (*model.ClassSession, error)
	// LockBooking takes the row lock of a booking.
	LockBooking(ctx context.Context, id string) (*model.Booking, error)
	// LockOwnedBooking is LockBooking restricted to bookings owned by
	// userID. A foreign booking is reported as ErrNotFound.
	LockOwnedBooking(ctx context.Context, id, userID string) (*model.Booking, error)
	HasActiveBooking(ctx context.Context, userID, classID string) (bool, error)
	CountConfirmed(ctx context.Context, classID string) (int, error)
	// CountActive counts pending and confirmed bookings.
	CountActive(ctx context.Context, classID string) (int, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBooking(ctx context.Context, b *model.Booking) error
}

// BookingStore persists bookings.
type BookingStore interface {
	// InTx runs fn in a transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx BookingTx) error) error

	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
	CountConfirmedForClass(ctx context.Context, classID string) (int, error)
	// FindPendingOlderThan returns pending bookings created before cutoff.
	FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.Booking, error)
	// FindConfirmedStartingBetween returns confirmed, not yet reminded
	// bookings whose class starts in [from, to].
	FindConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]model.ReminderTarget, error)
	MarkReminded(ctx context.Context, bookingID string, at time.Time) error
}

// ClassStore persists class sessions.
type ClassStore interface {
	Create(ctx context.Context, c *model.ClassSession) error
	List(ctx context.Context, f model.ClassFilter) ([]model.ClassSession, error)
	GetByID(ctx context.Context, id string) (*model.ClassSession, error)
	Update(ctx context.Context, c *model.ClassSession) error
	// Delete removes a class together with its bookings.
	Delete(ctx context.Context, id string) error
}

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// Update rewrites email and bio.
	Update(ctx context.Context, u *model.User) error
}

// Postgres error codes mapped onto the sentinel errors above.
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeInvalidTextRepresent = "22P02"
)

// isMissing reports whether err means no row matched. An id that does not
// parse as a UUID cannot name a row either.
func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeInvalidTextRepresent
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable:
		return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	case codeInvalidTextRepresent:
		return fmt.Errorf("%w: %s", ErrNotFound, pgErr.Message)
	}
	return err
}
