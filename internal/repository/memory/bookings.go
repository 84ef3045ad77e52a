package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
)

// BookingStore is the in-memory repository.BookingStore.
type BookingStore struct {
	db *DB
}

func (s *BookingStore) InTx(ctx context.Context, fn func(tx repository.BookingTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{db: s.db, held: make(map[string]func()), staged: make(map[string]model.Booking)}
	defer t.release()

	if err := fn(t); err != nil {
		return err
	}
	// A caller that gave up mid-flight gets nothing written.
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

type tx struct {
	db     *DB
	held   map[string]func()
	staged map[string]model.Booking
	order  []string
}

func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	release, err := t.db.locks.acquire(ctx, key, t.db.lockTimeout)
	if err != nil {
		return err
	}
	t.held[key] = release
	return nil
}

func (t *tx) release() {
	for _, release := range t.held {
		release()
	}
	t.held = nil
}

// view returns the booking as this transaction sees it.
func (t *tx) view(id string) (model.Booking, bool) {
	if b, ok := t.staged[id]; ok {
		return b, true
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	b, ok := t.db.bookings[id]
	return b, ok
}

// each calls fn for every booking visible to the transaction.
func (t *tx) each(fn func(b model.Booking)) {
	t.db.mu.RLock()
	for id, b := range t.db.bookings {
		if _, ok := t.staged[id]; ok {
			continue
		}
		fn(b)
	}
	t.db.mu.RUnlock()
	for _, id := range t.order {
		fn(t.staged[id])
	}
}

func (t *tx) stage(b model.Booking) {
	if _, ok := t.staged[b.ID]; !ok {
		t.order = append(t.order, b.ID)
	}
	t.staged[b.ID] = b
}

func (t *tx) LockClass(ctx context.Context, classID string) (*model.ClassSession, error) {
	if err := t.lock(ctx, "class:"+classID); err != nil {
		return nil, err
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	c, ok := t.db.classes[classID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (t *tx) LockBooking(ctx context.Context, id string) (*model.Booking, error) {
	if err := t.lock(ctx, "booking:"+id); err != nil {
		return nil, err
	}
	b, ok := t.view(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (t *tx) LockOwnedBooking(ctx context.Context, id, userID string) (*model.Booking, error) {
	b, err := t.LockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

func (t *tx) HasActiveBooking(_ context.Context, userID, classID string) (bool, error) {
	found := false
	t.each(func(b model.Booking) {
		if b.UserID == userID && b.ClassID == classID && b.Active() {
			found = true
		}
	})
	return found, nil
}

func (t *tx) CountConfirmed(_ context.Context, classID string) (int, error) {
	n := 0
	t.each(func(b model.Booking) {
		if b.ClassID == classID && b.Status == model.StatusConfirmed {
			n++
		}
	})
	return n, nil
}

func (t *tx) CountActive(_ context.Context, classID string) (int, error) {
	n := 0
	t.each(func(b model.Booking) {
		if b.ClassID == classID && b.Active() {
			n++
		}
	})
	return n, nil
}

func (t *tx) InsertBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.view(b.ID); ok {
		return fmt.Errorf("insert booking: %w", repository.ErrDuplicate)
	}
	t.stage(*b)
	return nil
}

func (t *tx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.view(b.ID); !ok {
		return repository.ErrNotFound
	}
	t.stage(*b)
	return nil
}

// commit applies staged rows atomically. It enforces the same one active
// booking per (user, class) rule as the Postgres partial unique index.
func (t *tx) commit() error {
	if len(t.order) == 0 {
		return nil
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	for _, id := range t.order {
		b := t.staged[id]
		if !b.Active() {
			continue
		}
		for otherID, other := range t.db.bookings {
			if otherID == id {
				continue
			}
			if s, ok := t.staged[otherID]; ok {
				other = s
			}
			if other.Active() && other.UserID == b.UserID && other.ClassID == b.ClassID {
				return fmt.Errorf("commit booking: %w", repository.ErrDuplicate)
			}
		}
	}
	for _, id := range t.order {
		t.db.bookings[id] = t.staged[id]
	}
	return nil
}

func (s *BookingStore) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (s *BookingStore) ListByUser(_ context.Context, userID string) ([]model.Booking, error) {
	out := s.filter(func(b model.Booking) bool { return b.UserID == userID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *BookingStore) CountConfirmedForClass(_ context.Context, classID string) (int, error) {
	return len(s.filter(func(b model.Booking) bool {
		return b.ClassID == classID && b.Status == model.StatusConfirmed
	})), nil
}

func (s *BookingStore) FindPendingOlderThan(_ context.Context, cutoff time.Time) ([]model.Booking, error) {
	return s.filter(func(b model.Booking) bool {
		return b.Status == model.StatusPending && b.CreatedAt.Before(cutoff)
	}), nil
}

func (s *BookingStore) FindConfirmedStartingBetween(_ context.Context, from, to time.Time) ([]model.ReminderTarget, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []model.ReminderTarget
	for _, b := range s.db.bookings {
		if b.Status != model.StatusConfirmed || b.RemindedAt != nil {
			continue
		}
		c, ok := s.db.classes[b.ClassID]
		if !ok || c.StartsAt.Before(from) || c.StartsAt.After(to) {
			continue
		}
		u, ok := s.db.users[b.UserID]
		if !ok {
			continue
		}
		out = append(out, model.ReminderTarget{
			BookingID: b.ID,
			UserID:    b.UserID,
			Email:     u.Email,
			ClassName: c.Name,
			StartsAt:  c.StartsAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// MarkReminded takes the booking's row lock, so it waits for a transaction
// that holds the booking and writes after that transaction's commit.
func (s *BookingStore) MarkReminded(ctx context.Context, bookingID string, at time.Time) error {
	release, err := s.db.locks.acquire(ctx, "booking:"+bookingID, s.db.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[bookingID]
	if !ok {
		return repository.ErrNotFound
	}
	t := at
	b.RemindedAt = &t
	s.db.bookings[bookingID] = b
	return nil
}

// filter returns matching bookings ordered by creation time.
func (s *BookingStore) filter(keep func(model.Booking) bool) []model.Booking {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.db.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
