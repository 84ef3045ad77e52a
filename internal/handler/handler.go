// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the ledger and service layers.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/classbook/internal/auth"
	"github.com/Shivanand-hulikatti/classbook/internal/ledger"
	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/service"
)

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeFailure maps domain errors onto status codes. Expected outcomes
// carry their own message; anything else is logged and reported as 500.
func writeFailure(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalid),
		errors.Is(err, ledger.ErrTooLateToBook):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ledger.ErrForbidden),
		errors.Is(err, service.ErrNotClassTrainer),
		errors.Is(err, service.ErrTrainerOnly):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrClassNotFound),
		errors.Is(err, service.ErrClassNotFound),
		errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrAlreadyBooked),
		errors.Is(err, ledger.ErrClassFull),
		errors.Is(err, ledger.ErrBookingCanceled),
		errors.Is(err, service.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "the class is busy, please retry")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is listening.
	default:
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// principal returns the authenticated caller. Routes that call it sit
// behind Authenticate.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

// ─── Health check ─────────────────────────────────────────────────────────────

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health. A nil pinger always reports ok.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
