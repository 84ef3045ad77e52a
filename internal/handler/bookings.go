package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/classbook/internal/ledger"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
)

// BookingHandler exposes the booking ledger. Every route acts on behalf of
// the authenticated caller.
type BookingHandler struct {
	ledger *ledger.Ledger
	log    *slog.Logger
}

func NewBookingHandler(l *ledger.Ledger, log *slog.Logger) *BookingHandler {
	return &BookingHandler{ledger: l, log: log}
}

// CreateBooking handles POST /bookings
// Reserves a pending slot; the caller must confirm it within 15 minutes.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.ClassID = strings.TrimSpace(req.ClassID)
	if req.ClassID == "" {
		writeError(w, http.StatusBadRequest, "class_id is required")
		return
	}
	b, err := h.ledger.CreateBooking(r.Context(), principal(r).UserID, req.ClassID)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// ListBookings handles GET /bookings
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.ledger.ListBookings(r.Context(), principal(r).UserID)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// GetBooking handles GET /bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.ledger.GetBooking(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// CancelBooking handles POST /bookings/{id}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.ledger.CancelBooking(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ConfirmAttendance handles POST /bookings/confirm-attendance
func (h *BookingHandler) ConfirmAttendance(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmAttendanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}
	b, err := h.ledger.ConfirmAttendance(r.Context(), req.BookingID, principal(r).UserID)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
