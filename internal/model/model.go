// Package model defines the core domain types for the class booking system.
package model

import (
	"errors"
	"time"
)

// Timing rules shared by the ledger and the periodic jobs.
const (
	// BookingCutoff is how long before a class starts bookings close.
	BookingCutoff = time.Hour
	// ExpiryGracePeriod is how long a booking may stay pending before it
	// is cancelled automatically.
	ExpiryGracePeriod = 15 * time.Minute
	// ReminderWindow is how far ahead of a class reminders go out.
	ReminderWindow = 24 * time.Hour
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCanceled  BookingStatus = "canceled"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCanceled:
		return true
	}
	return false
}

// ErrInvalidTransition is returned when a booking cannot move to the
// requested status.
var ErrInvalidTransition = errors.New("invalid booking status transition")

// transitions lists the allowed moves. Canceled has no way out.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusCanceled},
}

// CanTransition reports whether a booking in status from may move to to.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ClassSession represents a scheduled, capacity-limited class run by a trainer.
type ClassSession struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	DurationMin int       `json:"duration_minutes"`
	Capacity    int       `json:"capacity"`
	TrainerID   string    `json:"trainer_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// CanBook reports whether the class still accepts bookings at now.
func CanBook(c ClassSession, now time.Time) bool {
	return c.StartsAt.Sub(now) > BookingCutoff
}

// Booking represents a user's reservation against a class session.
type Booking struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	ClassID     string        `json:"class_id"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	ConfirmedAt *time.Time    `json:"confirmed_at"`
	RemindedAt  *time.Time    `json:"reminded_at,omitempty"`
}

// IsExpired reports whether a pending booking has outlived the grace period.
// Confirmed and canceled bookings never expire.
func (b *Booking) IsExpired(now time.Time) bool {
	return b.Status == StatusPending && now.Sub(b.CreatedAt) > ExpiryGracePeriod
}

// Active reports whether the booking still holds a place for its user.
func (b *Booking) Active() bool {
	return b.Status != StatusCanceled
}

// Confirm moves the booking to Confirmed. Confirming twice is a no-op that
// keeps the original confirmation time.
func (b *Booking) Confirm(now time.Time) error {
	if b.Status == StatusConfirmed {
		return nil
	}
	if !CanTransition(b.Status, StatusConfirmed) {
		return ErrInvalidTransition
	}
	t := now
	b.Status = StatusConfirmed
	b.ConfirmedAt = &t
	return nil
}

// Cancel moves the booking to Canceled from any status. confirmed_at is
// cleared so it stays set only while the booking is confirmed.
func (b *Booking) Cancel() {
	b.Status = StatusCanceled
	b.ConfirmedAt = nil
}

// Role distinguishes trainers from regular members.
type Role string

const (
	RoleUser    Role = "user"
	RoleTrainer Role = "trainer"
)

// User is an account that can book classes or run them.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReminderTarget is a confirmed booking joined with what a reminder mail needs.
type ReminderTarget struct {
	BookingID string
	UserID    string
	Email     string
	ClassName string
	StartsAt  time.Time
}

// ClassDetail is a class with its current booking figures.
type ClassDetail struct {
	ClassSession
	ConfirmedCount int  `json:"confirmed_count"`
	SeatsLeft      int  `json:"seats_left"`
	Bookable       bool `json:"bookable"`
}

// ClassFilter narrows a class listing. From and To bound the start time
// inclusively; a zero value leaves that side open.
type ClassFilter struct {
	TrainerID string
	Search    string
	From      time.Time
	To        time.Time
}

// CreateClassRequest is the payload for publishing or updating a class.
type CreateClassRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	DurationMin int       `json:"duration_minutes"`
	Capacity    int       `json:"capacity"`
}

// CreateBookingRequest is the payload for reserving a slot.
type CreateBookingRequest struct {
	ClassID string `json:"class_id"`
}

// ConfirmAttendanceRequest is the payload for confirming a booking.
type ConfirmAttendanceRequest struct {
	BookingID string `json:"booking_id"`
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	Bio      string `json:"bio"`
}

// UpdateProfileRequest is the payload for editing the caller's account.
// Omitted fields keep their current value.
type UpdateProfileRequest struct {
	Email *string `json:"email"`
	Bio   *string `json:"bio"`
}

// LoginRequest is the payload for exchanging credentials for a token.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
