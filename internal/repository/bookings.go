package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, user_id, class_id, status, created_at, confirmed_at, reminded_at`

// BookingRepository handles persistence for bookings.
type BookingRepository struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewBookingRepository constructs a BookingRepository. Lock waits inside
// its transactions give up after lockTimeout; zero waits forever.
func NewBookingRepository(db *pgxpool.Pool, lockTimeout time.Duration) *BookingRepository {
	return &BookingRepository{db: db, lockTimeout: lockTimeout}
}

// InTx runs fn inside a single transaction.
//
// ─────────────────────────────────────────────────────────────────────────────
// WHY EVERY BOOKING WRITE GOES THROUGH HERE
// ─────────────────────────────────────────────────────────────────────────────
//
// Capacity is checked by counting confirmed bookings and comparing against
// the class capacity. Done as a plain read-then-write, two requests can
// count the same number, both pass, and both insert:
//
//	A: COUNT(confirmed) for class X → 9   (capacity 10)
//	B: COUNT(confirmed) for class X → 9
//	A: INSERT booking
//	B: INSERT booking
//
// The booking ledger therefore calls LockClass first, which issues
// SELECT … FOR UPDATE on the class row. A second transaction doing the same
// blocks until the first commits or rolls back, so the duplicate check, the
// count and the insert happen one class at a time. Status changes lock the
// booking row itself.
//
// lock_timeout bounds how long a transaction waits for either lock. When it
// fires Postgres raises 55P03, reported here as ErrLockTimeout.
// ─────────────────────────────────────────────────────────────────────────────
func (r *BookingRepository) InTx(ctx context.Context, fn func(tx BookingTx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved, even if ctx was cancelled.
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if r.lockTimeout > 0 {
		// SET does not take bind parameters; the value is an integer in ms.
		if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}

	if err = fn(&bookingTx{tx: tx}); err != nil {
		return mapPgError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapPgError(err))
	}
	return nil
}

type bookingTx struct {
	tx pgx.Tx
}

func (t *bookingTx) LockClass(ctx context.Context, classID string) (*model.ClassSession, error) {
	c, err := scanClass(t.tx.QueryRow(ctx,
		`SELECT `+classColumns+`
		 FROM classes
		 WHERE id = $1
		 FOR UPDATE`,
		classID,
	))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock class row: %w", err)
	}
	return c, nil
}

func (t *bookingTx) LockBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock booking row: %w", err)
	}
	return b, nil
}

func (t *bookingTx) LockOwnedBooking(ctx context.Context, id, userID string) (*model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock booking row: %w", err)
	}
	return b, nil
}

func (t *bookingTx) HasActiveBooking(ctx context.Context, userID, classID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM bookings
		   WHERE user_id = $1 AND class_id = $2 AND status <> 'canceled')`,
		userID, classID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (t *bookingTx) CountConfirmed(ctx context.Context, classID string) (int, error) {
	return countConfirmed(ctx, t.tx, classID)
}

func (t *bookingTx) CountActive(ctx context.Context, classID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE class_id = $1 AND status <> 'canceled'`,
		classID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return n, nil
}

func (t *bookingTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bookings (id, user_id, class_id, status, created_at, confirmed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.UserID, b.ClassID, string(b.Status), b.CreatedAt, b.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", mapPgError(err))
	}
	return nil
}

func (t *bookingTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bookings SET status = $2, confirmed_at = $3 WHERE id = $1`,
		b.ID, string(b.Status), b.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetBooking returns a single booking or ErrNotFound.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return r.queryBookings(ctx, "list bookings",
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
}

// CountConfirmedForClass counts confirmed bookings outside any transaction.
func (r *BookingRepository) CountConfirmedForClass(ctx context.Context, classID string) (int, error) {
	return countConfirmed(ctx, r.db, classID)
}

// FindPendingOlderThan uses the (status, created_at) index.
func (r *BookingRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.Booking, error) {
	return r.queryBookings(ctx, "find stale pending bookings",
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at ASC`,
		cutoff,
	)
}

func (r *BookingRepository) FindConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]model.ReminderTarget, error) {
	rows, err := r.db.Query(ctx,
		`SELECT b.id, b.user_id, u.email, c.name, c.starts_at
		 FROM bookings b
		 JOIN classes c ON c.id = b.class_id
		 JOIN users u ON u.id = b.user_id
		 WHERE b.status = 'confirmed'
		   AND b.reminded_at IS NULL
		   AND c.starts_at BETWEEN $1 AND $2
		 ORDER BY c.starts_at ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("find reminder targets: %w", err)
	}
	defer rows.Close()

	var out []model.ReminderTarget
	for rows.Next() {
		var t model.ReminderTarget
		if err := rows.Scan(&t.BookingID, &t.UserID, &t.Email, &t.ClassName, &t.StartsAt); err != nil {
			return nil, fmt.Errorf("scan reminder target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *BookingRepository) MarkReminded(ctx context.Context, bookingID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE bookings SET reminded_at = $2 WHERE id = $1`, bookingID, at)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	return nil
}

func (r *BookingRepository) queryBookings(ctx context.Context, op, sql string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countConfirmed(ctx context.Context, q querier, classID string) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE class_id = $1 AND status = 'confirmed'`,
		classID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count confirmed bookings: %w", err)
	}
	return n, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	var status string
	if err := row.Scan(&b.ID, &b.UserID, &b.ClassID, &status, &b.CreatedAt, &b.ConfirmedAt, &b.RemindedAt); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	if !b.Status.Valid() {
		return nil, fmt.Errorf("unknown booking status %q", status)
	}
	return &b, nil
}
