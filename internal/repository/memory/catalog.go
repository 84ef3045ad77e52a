package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
)

// ClassStore is the in-memory repository.ClassStore.
type ClassStore struct {
	db *DB
}

func (s *ClassStore) Create(_ context.Context, c *model.ClassSession) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.classes[c.ID]; ok {
		return repository.ErrDuplicate
	}
	s.db.classes[c.ID] = *c
	return nil
}

func (s *ClassStore) List(_ context.Context, f model.ClassFilter) ([]model.ClassSession, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var out []model.ClassSession
	for _, c := range s.db.classes {
		if f.TrainerID != "" && c.TrainerID != f.TrainerID {
			continue
		}
		if !f.From.IsZero() && c.StartsAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && c.StartsAt.After(f.To) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *ClassStore) GetByID(_ context.Context, id string) (*model.ClassSession, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	c, ok := s.db.classes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *ClassStore) Update(_ context.Context, c *model.ClassSession) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.classes[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Name = c.Name
	cur.Description = c.Description
	cur.StartsAt = c.StartsAt
	cur.DurationMin = c.DurationMin
	cur.Capacity = c.Capacity
	s.db.classes[c.ID] = cur
	return nil
}

func (s *ClassStore) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.classes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.db.classes, id)
	for bid, b := range s.db.bookings {
		if b.ClassID == id {
			delete(s.db.bookings, bid)
		}
	}
	return nil
}

// UserStore is the in-memory repository.UserStore.
type UserStore struct {
	db *DB
}

func (s *UserStore) Create(_ context.Context, u *model.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, other := range s.db.users {
		if other.Username == u.Username {
			return repository.ErrDuplicate
		}
	}
	s.db.users[u.ID] = *u
	return nil
}

func (s *UserStore) Update(_ context.Context, u *model.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Email = u.Email
	cur.Bio = u.Bio
	s.db.users[u.ID] = cur
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, u := range s.db.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}
