package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/classbook/internal/clock"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
)

var (
	// ErrClassNotFound is returned for an unknown class id.
	ErrClassNotFound = errors.New("class not found")
	// ErrTrainerOnly is returned when a regular member tries to publish a class.
	ErrTrainerOnly = errors.New("only trainers can publish classes")
	// ErrNotClassTrainer is returned when someone other than the class's
	// trainer tries to change it.
	ErrNotClassTrainer = errors.New("you do not have permission to modify this class")
)

const (
	maxCapacity        = 100_000
	defaultDurationMin = 60
)

// ConfirmedCounter reports how many confirmed bookings a class holds.
type ConfirmedCounter interface {
	CountConfirmedForClass(ctx context.Context, classID string) (int, error)
}

// ClassService orchestrates the class catalog.
type ClassService struct {
	classes  repository.ClassStore
	bookings ConfirmedCounter
	clock    clock.Clock
	log      *slog.Logger
}

// NewClassService constructs a ClassService with its dependencies.
func NewClassService(classes repository.ClassStore, bookings ConfirmedCounter, clk clock.Clock, log *slog.Logger) *ClassService {
	return &ClassService{classes: classes, bookings: bookings, clock: clk, log: log}
}

// CreateClass validates the request and publishes a class owned by trainer.
func (s *ClassService) CreateClass(ctx context.Context, trainer model.User, req model.CreateClassRequest) (*model.ClassSession, error) {
	if trainer.Role != model.RoleTrainer {
		return nil, ErrTrainerOnly
	}
	req, err := normalizeClass(req)
	if err != nil {
		return nil, err
	}
	c := &model.ClassSession{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		StartsAt:    req.StartsAt.UTC(),
		DurationMin: req.DurationMin,
		Capacity:    req.Capacity,
		TrainerID:   trainer.ID,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.classes.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create class: %w", err)
	}
	s.log.Info("class created", "class_id", c.ID, "trainer_id", trainer.ID, "starts_at", c.StartsAt)
	return c, nil
}

// ListClasses returns classes ordered by start time.
func (s *ClassService) ListClasses(ctx context.Context, f model.ClassFilter) ([]model.ClassSession, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, invalid("to must not be before from")
	}
	classes, err := s.classes.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// GetClass returns a class with its confirmed count and bookability at now.
func (s *ClassService) GetClass(ctx context.Context, id string) (*model.ClassDetail, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.bookings.CountConfirmedForClass(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count confirmed: %w", err)
	}
	return &model.ClassDetail{
		ClassSession:   *c,
		ConfirmedCount: n,
		SeatsLeft:      max(c.Capacity-n, 0),
		Bookable:       model.CanBook(*c, s.clock.Now()) && n < c.Capacity,
	}, nil
}

// UpdateClass replaces the editable fields of a class owned by userID.
func (s *ClassService) UpdateClass(ctx context.Context, id, userID string, req model.CreateClassRequest) (*model.ClassSession, error) {
	c, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	req, err = normalizeClass(req)
	if err != nil {
		return nil, err
	}
	n, err := s.bookings.CountConfirmedForClass(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count confirmed: %w", err)
	}
	if req.Capacity < n {
		return nil, invalid("capacity cannot be lower than the %d confirmed bookings", n)
	}
	c.Name = req.Name
	c.Description = req.Description
	c.StartsAt = req.StartsAt.UTC()
	c.DurationMin = req.DurationMin
	c.Capacity = req.Capacity
	if err := s.classes.Update(ctx, c); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("update class: %w", err)
	}
	return c, nil
}

// DeleteClass removes a class owned by userID together with its bookings.
func (s *ClassService) DeleteClass(ctx context.Context, id, userID string) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.classes.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrClassNotFound
		}
		return fmt.Errorf("delete class: %w", err)
	}
	s.log.Info("class deleted", "class_id", id)
	return nil
}

func (s *ClassService) get(ctx context.Context, id string) (*model.ClassSession, error) {
	if id == "" {
		return nil, invalid("class id is required")
	}
	c, err := s.classes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("get class: %w", err)
	}
	return c, nil
}

func (s *ClassService) owned(ctx context.Context, id, userID string) (*model.ClassSession, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TrainerID != userID {
		return nil, ErrNotClassTrainer
	}
	return c, nil
}

func normalizeClass(req model.CreateClassRequest) (model.CreateClassRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return req, invalid("class name is required")
	}
	if req.StartsAt.IsZero() {
		return req, invalid("starts_at is required")
	}
	if req.Capacity < 0 {
		return req, invalid("capacity cannot be negative")
	}
	if req.Capacity > maxCapacity {
		return req, invalid("capacity cannot exceed 100,000")
	}
	if req.DurationMin == 0 {
		req.DurationMin = defaultDurationMin
	}
	if req.DurationMin < 0 || time.Duration(req.DurationMin)*time.Minute > 24*time.Hour {
		return req, invalid("duration_minutes must be between 1 and 1440")
	}
	return req, nil
}
