// Package memory implements the repository contracts in process memory.
// It backs the dev server (STORE_DRIVER=memory) and the test suites, and
// keeps the same locking and rollback behaviour as the Postgres store:
// class and booking locks are exclusive, bounded by a timeout, and writes
// become visible only when a transaction commits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
)

// DB holds all tables. Use Bookings, Classes and Users for the typed stores.
type DB struct {
	mu       sync.RWMutex
	classes  map[string]model.ClassSession
	bookings map[string]model.Booking
	users    map[string]model.User

	locks       *keyedLocks
	lockTimeout time.Duration
}

// New returns an empty DB whose transactions wait at most lockTimeout for
// a lock. Zero waits until the context is done.
func New(lockTimeout time.Duration) *DB {
	return &DB{
		classes:     make(map[string]model.ClassSession),
		bookings:    make(map[string]model.Booking),
		users:       make(map[string]model.User),
		locks:       newKeyedLocks(),
		lockTimeout: lockTimeout,
	}
}

func (d *DB) Bookings() *BookingStore { return &BookingStore{db: d} }
func (d *DB) Classes() *ClassStore    { return &ClassStore{db: d} }
func (d *DB) Users() *UserStore       { return &UserStore{db: d} }

var (
	_ repository.BookingStore = (*BookingStore)(nil)
	_ repository.ClassStore   = (*ClassStore)(nil)
	_ repository.UserStore    = (*UserStore)(nil)
)

// keyedLocks is a set of exclusive locks addressed by string key. Each lock
// is a one-slot channel so acquisition can race a timer and a context.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]chan struct{})}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

func (k *keyedLocks) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	ch := k.slot(key)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-expired:
		return nil, repository.ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
