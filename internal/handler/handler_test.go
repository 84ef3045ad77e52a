package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/classbook/internal/auth"
	"github.com/Shivanand-hulikatti/classbook/internal/clock"
	"github.com/Shivanand-hulikatti/classbook/internal/handler"
	"github.com/Shivanand-hulikatti/classbook/internal/ledger"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/notify"
	"github.com/Shivanand-hulikatti/classbook/internal/notify/notifytest"
	"github.com/Shivanand-hulikatti/classbook/internal/repository"
	"github.com/Shivanand-hulikatti/classbook/internal/repository/memory"
	"github.com/Shivanand-hulikatti/classbook/internal/service"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type api struct {
	t     *testing.T
	srv   *httptest.Server
	db    *memory.DB
	clock *clock.Fake
}

func newAPI(t *testing.T, lockTimeout time.Duration) *api {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memory.New(lockTimeout)
	clk := clock.NewFake(t0)
	iss, err := auth.NewIssuer("test-secret", time.Hour, clk)
	require.NoError(t, err)

	n := notify.New(notify.Config{FromEmail: "noreply@example.com"}, &notifytest.Recorder{}, log)
	l := ledger.New(db.Bookings(), db.Users(), n, clk, log)

	router := handler.NewRouter(handler.Deps{
		Classes:  handler.NewClassHandler(service.NewClassService(db.Classes(), db.Bookings(), clk, log), log),
		Bookings: handler.NewBookingHandler(l, log),
		Users:    handler.NewUserHandler(service.NewUserService(db.Users(), iss, clk, log), log),
		Issuer:   iss,
		Log:      log,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &api{t: t, srv: srv, db: db, clock: clk}
}

func (a *api) do(method, path, token string, body any) *http.Response {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, r)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// signup registers an account and returns its id and a token.
func (a *api) signup(username string, role model.Role) (string, string) {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/users", "", model.RegisterRequest{
		Username: username, Email: username + "@example.com", Password: "password123", Role: role,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	u := decode[model.User](a.t, resp)

	resp = a.do(http.MethodPost, "/auth/token", "", model.LoginRequest{Username: username, Password: "password123"})
	require.Equal(a.t, http.StatusOK, resp.StatusCode)
	return u.ID, decode[model.TokenResponse](a.t, resp).AccessToken
}

func (a *api) createClass(token string, startsIn time.Duration, capacity int) model.ClassSession {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/classes", token, model.CreateClassRequest{
		Name: "HIIT", StartsAt: t0.Add(startsIn), DurationMin: 45, Capacity: capacity,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	return decode[model.ClassSession](a.t, resp)
}

func TestHealth(t *testing.T) {
	a := newAPI(t, time.Second)
	resp := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t, time.Second)

	resp := a.do(http.MethodGet, "/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp = a.do(http.MethodGet, "/bookings", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = a.do(http.MethodPost, "/auth/token", "", model.LoginRequest{Username: "nobody", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMe(t *testing.T) {
	a := newAPI(t, time.Second)
	id, token := a.signup("ana", model.RoleUser)

	resp := a.do(http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u := decode[map[string]any](t, resp)
	assert.Equal(t, id, u["id"])
	assert.NotContains(t, u, "PasswordHash")
	assert.NotContains(t, u, "password_hash")

	resp = a.do(http.MethodPost, "/users", "", model.RegisterRequest{
		Username: "ana", Email: "ana2@example.com", Password: "password123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestClassLifecycle(t *testing.T) {
	a := newAPI(t, time.Second)
	_, trainer := a.signup("tina", model.RoleTrainer)
	_, otherTrainer := a.signup("tom", model.RoleTrainer)
	_, member := a.signup("ana", model.RoleUser)

	resp := a.do(http.MethodPost, "/classes", member, model.CreateClassRequest{Name: "x", StartsAt: t0.Add(time.Hour * 5), Capacity: 1})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = a.do(http.MethodPost, "/classes", trainer, model.CreateClassRequest{Name: "", StartsAt: t0, Capacity: 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	c := a.createClass(trainer, 5*time.Hour, 8)

	resp = a.do(http.MethodGet, "/classes?search=hiit", member, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.ClassSession](t, resp), 1)

	resp = a.do(http.MethodGet, "/classes/"+c.ID, member, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := decode[model.ClassDetail](t, resp)
	assert.Equal(t, 8, d.SeatsLeft)
	assert.True(t, d.Bookable)

	update := model.CreateClassRequest{Name: "HIIT+", StartsAt: c.StartsAt, DurationMin: 45, Capacity: 10}
	resp = a.do(http.MethodPut, "/classes/"+c.ID, otherTrainer, update)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = a.do(http.MethodPut, "/classes/"+c.ID, trainer, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "HIIT+", decode[model.ClassSession](t, resp).Name)

	resp = a.do(http.MethodDelete, "/classes/"+c.ID, otherTrainer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = a.do(http.MethodDelete, "/classes/"+c.ID, trainer, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = a.do(http.MethodGet, "/classes/"+c.ID, member, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBookingFlow(t *testing.T) {
	a := newAPI(t, time.Second)
	_, trainer := a.signup("tina", model.RoleTrainer)
	anaID, ana := a.signup("ana", model.RoleUser)
	_, ben := a.signup("ben", model.RoleUser)
	c := a.createClass(trainer, 5*time.Hour, 1)

	resp := a.do(http.MethodPost, "/bookings", ana, model.CreateBookingRequest{ClassID: c.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	b := decode[model.Booking](t, resp)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, anaID, b.UserID)

	resp = a.do(http.MethodPost, "/bookings", ana, model.CreateBookingRequest{ClassID: c.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = a.do(http.MethodGet, "/bookings/"+b.ID, ben, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(http.MethodPost, "/bookings/confirm-attendance", ben, model.ConfirmAttendanceRequest{BookingID: b.ID})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(http.MethodPost, "/bookings/confirm-attendance", ana, model.ConfirmAttendanceRequest{BookingID: b.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusConfirmed, decode[model.Booking](t, resp).Status)

	// The only seat is confirmed.
	resp = a.do(http.MethodPost, "/bookings", ben, model.CreateBookingRequest{ClassID: c.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = a.do(http.MethodPost, "/bookings/"+b.ID+"/cancel", ben, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = a.do(http.MethodPost, "/bookings/"+b.ID+"/cancel", ana, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusCanceled, decode[model.Booking](t, resp).Status)

	resp = a.do(http.MethodPost, "/bookings/confirm-attendance", ana, model.ConfirmAttendanceRequest{BookingID: b.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = a.do(http.MethodGet, "/bookings", ana, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.Booking](t, resp), 1)

	resp = a.do(http.MethodPost, "/bookings/missing/cancel", ana, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBookingErrors(t *testing.T) {
	a := newAPI(t, time.Second)
	_, trainer := a.signup("tina", model.RoleTrainer)
	_, ana := a.signup("ana", model.RoleUser)
	soon := a.createClass(trainer, 30*time.Minute, 5)

	resp := a.do(http.MethodPost, "/bookings", ana, model.CreateBookingRequest{ClassID: soon.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[model.ErrorResponse](t, resp).Error, "one hour")

	resp = a.do(http.MethodPost, "/bookings", ana, model.CreateBookingRequest{ClassID: "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(http.MethodPost, "/bookings", ana, map[string]string{"class": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(http.MethodPost, "/bookings", ana, model.CreateBookingRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	a := newAPI(t, 50*time.Millisecond)
	_, trainer := a.signup("tina", model.RoleTrainer)
	_, ana := a.signup("ana", model.RoleUser)
	c := a.createClass(trainer, 5*time.Hour, 5)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- a.db.Bookings().InTx(context.Background(), func(tx repository.BookingTx) error {
			if _, err := tx.LockClass(context.Background(), c.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	resp := a.do(http.MethodPost, "/bookings", ana, model.CreateBookingRequest{ClassID: c.ID})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	close(release)
	require.NoError(t, <-done)
}

func TestCORSPreflight(t *testing.T) {
	a := newAPI(t, time.Second)
	resp := a.do(http.MethodOptions, "/bookings", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUpdateMe(t *testing.T) {
	a := newAPI(t, time.Second)
	_, token := a.signup("ana", model.RoleUser)

	resp := a.do(http.MethodPut, "/users/me", token, map[string]string{"bio": "Morning runner"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u := decode[model.User](t, resp)
	assert.Equal(t, "Morning runner", u.Bio)
	assert.Equal(t, "ana@example.com", u.Email)

	resp = a.do(http.MethodPut, "/users/me", token, map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(http.MethodPut, "/users/me", token, map[string]string{"username": "eve"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(http.MethodPut, "/users/me", "", map[string]string{"bio": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListClassesByStartTime(t *testing.T) {
	a := newAPI(t, time.Second)
	_, trainer := a.signup("tina", model.RoleTrainer)
	a.createClass(trainer, 5*time.Hour, 5)
	late := a.createClass(trainer, 50*time.Hour, 5)

	from := t0.Add(24 * time.Hour).Format(time.RFC3339)
	resp := a.do(http.MethodGet, "/classes?from="+from, trainer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[[]model.ClassSession](t, resp)
	require.Len(t, got, 1)
	assert.Equal(t, late.ID, got[0].ID)

	to := t0.Add(24 * time.Hour).Format(time.RFC3339)
	resp = a.do(http.MethodGet, "/classes?to="+to, trainer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.ClassSession](t, resp), 1)

	resp = a.do(http.MethodGet, "/classes?from=tomorrow", trainer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	a := newAPI(t, time.Second)
	_, ana := a.signup("ana", model.RoleUser)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/bookings/abc", nil},
		{http.MethodPost, "/bookings/abc/cancel", nil},
		{http.MethodPost, "/bookings/confirm-attendance", model.ConfirmAttendanceRequest{BookingID: "abc"}},
		{http.MethodPost, "/bookings", model.CreateBookingRequest{ClassID: "abc"}},
		{http.MethodGet, "/classes/abc", nil},
	} {
		resp := a.do(tc.method, tc.path, ana, tc.body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}
