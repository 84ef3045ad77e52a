package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/classbook/internal/model"
	"github.com/Shivanand-hulikatti/classbook/internal/service"
)

// ClassHandler serves the class catalog.
type ClassHandler struct {
	svc *service.ClassService
	log *slog.Logger
}

func NewClassHandler(svc *service.ClassService, log *slog.Logger) *ClassHandler {
	return &ClassHandler{svc: svc, log: log}
}

// CreateClass handles POST /classes. Trainers only.
func (h *ClassHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req model.CreateClassRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p := principal(r)
	c, err := h.svc.CreateClass(r.Context(), model.User{ID: p.UserID, Role: p.Role, Email: p.Email}, req)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListClasses handles GET /classes?trainer=&search=&from=&to=
// from and to are RFC 3339 timestamps bounding starts_at.
func (h *ClassHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.ClassFilter{
		TrainerID: q.Get("trainer"),
		Search:    q.Get("search"),
	}
	var err error
	if f.From, err = parseTimeParam(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
		return
	}
	if f.To, err = parseTimeParam(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
		return
	}
	classes, err := h.svc.ListClasses(r.Context(), f)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	// Return an empty array rather than null for better client compatibility.
	if classes == nil {
		classes = []model.ClassSession{}
	}
	writeJSON(w, http.StatusOK, classes)
}

// GetClass handles GET /classes/{id}
func (h *ClassHandler) GetClass(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetClass(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateClass handles PUT /classes/{id}. Owning trainer only.
func (h *ClassHandler) UpdateClass(w http.ResponseWriter, r *http.Request) {
	var req model.CreateClassRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c, err := h.svc.UpdateClass(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, req)
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteClass handles DELETE /classes/{id}. Owning trainer only.
func (h *ClassHandler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteClass(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
