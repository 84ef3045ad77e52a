package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/classbook/internal/auth"
	"github.com/Shivanand-hulikatti/classbook/internal/clock"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
	"github.com/Shivanand-hulikatti/classbook/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var (
	trainer = model.User{ID: "t1", Username: "tina", Role: model.RoleTrainer}
	member  = model.User{ID: "u1", Username: "ana", Role: model.RoleUser}
)

func newClassService(t *testing.T) (*ClassService, *memory.DB) {
	t.Helper()
	db := memory.New(time.Second)
	return NewClassService(db.Classes(), db.Bookings(), clock.NewFake(t0), discard()), db
}

func yoga() model.CreateClassRequest {
	return model.CreateClassRequest{
		Name: "  Yoga  ", Description: "Morning flow", StartsAt: t0.Add(48 * time.Hour), Capacity: 12,
	}
}

func TestCreateClass(t *testing.T) {
	svc, _ := newClassService(t)

	c, err := svc.CreateClass(context.Background(), trainer, yoga())
	require.NoError(t, err)
	assert.Equal(t, "Yoga", c.Name)
	assert.Equal(t, "t1", c.TrainerID)
	assert.Equal(t, 60, c.DurationMin)
	assert.Equal(t, t0, c.CreatedAt)

	_, err = svc.CreateClass(context.Background(), member, yoga())
	assert.ErrorIs(t, err, ErrTrainerOnly)
}

func TestCreateClassValidation(t *testing.T) {
	svc, _ := newClassService(t)
	tests := []struct {
		name   string
		mutate func(*model.CreateClassRequest)
	}{
		{"blank name", func(r *model.CreateClassRequest) { r.Name = "  " }},
		{"no start", func(r *model.CreateClassRequest) { r.StartsAt = time.Time{} }},
		{"negative capacity", func(r *model.CreateClassRequest) { r.Capacity = -1 }},
		{"huge capacity", func(r *model.CreateClassRequest) { r.Capacity = 100_001 }},
		{"negative duration", func(r *model.CreateClassRequest) { r.DurationMin = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := yoga()
			tt.mutate(&req)
			_, err := svc.CreateClass(context.Background(), trainer, req)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	req := yoga()
	req.Capacity = 0
	_, err := svc.CreateClass(context.Background(), trainer, req)
	assert.NoError(t, err, "a zero-capacity class is allowed")
}

func TestGetClassDetail(t *testing.T) {
	svc, db := newClassService(t)
	ctx := context.Background()
	c, err := svc.CreateClass(ctx, trainer, yoga())
	require.NoError(t, err)

	confirmedAt := t0
	require.NoError(t, db.Bookings().InTx(ctx, func(tx repository.BookingTx) error {
		return tx.InsertBooking(ctx, &model.Booking{
			ID: "b1", UserID: "u1", ClassID: c.ID, Status: model.StatusConfirmed, CreatedAt: t0, ConfirmedAt: &confirmedAt,
		})
	}))

	d, err := svc.GetClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.ConfirmedCount)
	assert.Equal(t, 11, d.SeatsLeft)
	assert.True(t, d.Bookable)

	_, err = svc.GetClass(ctx, "missing")
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestUpdateAndDeleteClassOwnership(t *testing.T) {
	svc, _ := newClassService(t)
	ctx := context.Background()
	c, err := svc.CreateClass(ctx, trainer, yoga())
	require.NoError(t, err)

	req := yoga()
	req.Name = "Power Yoga"
	req.Capacity = 20

	_, err = svc.UpdateClass(ctx, c.ID, "someone-else", req)
	assert.ErrorIs(t, err, ErrNotClassTrainer)

	updated, err := svc.UpdateClass(ctx, c.ID, trainer.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "Power Yoga", updated.Name)
	assert.Equal(t, 20, updated.Capacity)

	assert.ErrorIs(t, svc.DeleteClass(ctx, c.ID, "someone-else"), ErrNotClassTrainer)
	require.NoError(t, svc.DeleteClass(ctx, c.ID, trainer.ID))
	assert.ErrorIs(t, svc.DeleteClass(ctx, c.ID, trainer.ID), ErrClassNotFound)
}

func TestListClassesFilters(t *testing.T) {
	svc, _ := newClassService(t)
	ctx := context.Background()
	other := model.User{ID: "t2", Role: model.RoleTrainer}

	_, err := svc.CreateClass(ctx, trainer, yoga())
	require.NoError(t, err)
	spin := yoga()
	spin.Name, spin.Description = "Spin", "Cycling intervals"
	spin.StartsAt = t0.Add(24 * time.Hour)
	_, err = svc.CreateClass(ctx, other, spin)
	require.NoError(t, err)

	all, err := svc.ListClasses(ctx, model.ClassFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Spin", all[0].Name, "ordered by start time")

	mine, err := svc.ListClasses(ctx, model.ClassFilter{TrainerID: "t1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	found, err := svc.ListClasses(ctx, model.ClassFilter{Search: "CYCLING"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Spin", found[0].Name)
}

func newUserService(t *testing.T) *UserService {
	t.Helper()
	clk := clock.NewFake(t0)
	iss, err := auth.NewIssuer("test-secret", time.Hour, clk)
	require.NoError(t, err)
	return NewUserService(memory.New(time.Second).Users(), iss, clk, discard())
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, model.RegisterRequest{
		Username: "ana", Email: " Ana@Example.com ", Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)

	tok, err := svc.Login(ctx, model.LoginRequest{Username: "ana", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, t0.Add(time.Hour), tok.ExpiresAt)

	_, err = svc.Login(ctx, model.LoginRequest{Username: "ana", Password: "wrong-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, model.LoginRequest{Username: "nobody", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	me, err := svc.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", me.Username)
	_, err = svc.Me(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRegisterValidation(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()
	ok := model.RegisterRequest{Username: "ben", Email: "ben@example.com", Password: "12345678"}

	_, err := svc.Register(ctx, ok)
	require.NoError(t, err)
	_, err = svc.Register(ctx, ok)
	assert.ErrorIs(t, err, ErrUsernameTaken)

	bad := []model.RegisterRequest{
		{Username: "", Email: "x@example.com", Password: "12345678"},
		{Username: "x", Email: "not-an-email", Password: "12345678"},
		{Username: "x", Email: "x@example.com", Password: "short"},
		{Username: "x", Email: "x@example.com", Password: "12345678", Role: "admin"},
	}
	for _, req := range bad {
		_, err := svc.Register(ctx, req)
		assert.ErrorIs(t, err, ErrInvalid, "%+v", req)
	}
}

func TestUpdateClassKeepsConfirmedSeats(t *testing.T) {
	svc, db := newClassService(t)
	ctx := context.Background()
	c, err := svc.CreateClass(ctx, trainer, yoga())
	require.NoError(t, err)

	confirmedAt := t0
	for _, id := range []string{"b1", "b2"} {
		b := &model.Booking{ID: id, UserID: "u-" + id, ClassID: c.ID, Status: model.StatusConfirmed, CreatedAt: t0, ConfirmedAt: &confirmedAt}
		require.NoError(t, db.Bookings().InTx(ctx, func(tx repository.BookingTx) error {
			return tx.InsertBooking(ctx, b)
		}))
	}

	req := yoga()
	req.Capacity = 1
	_, err = svc.UpdateClass(ctx, c.ID, trainer.ID, req)
	assert.ErrorIs(t, err, ErrInvalid)

	req.Capacity = 2
	updated, err := svc.UpdateClass(ctx, c.ID, trainer.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Capacity)
}

func TestListClassesByStartRange(t *testing.T) {
	svc, _ := newClassService(t)
	ctx := context.Background()
	for i, name := range []string{"Early", "Middle", "Late"} {
		req := yoga()
		req.Name = name
		req.StartsAt = t0.Add(time.Duration(i+1) * 24 * time.Hour)
		_, err := svc.CreateClass(ctx, trainer, req)
		require.NoError(t, err)
	}

	got, err := svc.ListClasses(ctx, model.ClassFilter{From: t0.Add(48 * time.Hour), To: t0.Add(72 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Middle", got[0].Name)
	assert.Equal(t, "Late", got[1].Name)

	got, err = svc.ListClasses(ctx, model.ClassFilter{To: t0.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Early", got[0].Name)

	_, err = svc.ListClasses(ctx, model.ClassFilter{From: t0.Add(72 * time.Hour), To: t0})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUpdateProfile(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, model.RegisterRequest{Username: "ana", Email: "ana@example.com", Password: "correct-horse", Bio: "hi"})
	require.NoError(t, err)

	email, bio := " Ana@New.example ", "  Runs on Sundays  "
	got, err := svc.UpdateProfile(ctx, u.ID, model.UpdateProfileRequest{Email: &email, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "ana@new.example", got.Email)
	assert.Equal(t, "Runs on Sundays", got.Bio)

	empty := ""
	got, err = svc.UpdateProfile(ctx, u.ID, model.UpdateProfileRequest{Bio: &empty})
	require.NoError(t, err)
	assert.Equal(t, "ana@new.example", got.Email, "omitted email is kept")
	assert.Empty(t, got.Bio)

	me, err := svc.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@new.example", me.Email)

	bad := "not-an-email"
	_, err = svc.UpdateProfile(ctx, u.ID, model.UpdateProfileRequest{Email: &bad})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = svc.UpdateProfile(ctx, "missing", model.UpdateProfileRequest{Bio: &bio})
	assert.ErrorIs(t, err, ErrUserNotFound)
}
