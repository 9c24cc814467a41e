package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/pantry-pipeline/internal/api/middleware"
	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

// ReminderHandler handles reminder CRUD endpoints.
type ReminderHandler struct {
	svc    *service.ReminderService
	logger *zap.Logger
}

func NewReminderHandler(svc *service.ReminderService, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/reminders
//
// @Summary  Set a reminder for an item
// @Tags     reminders
// @Accept   json
// @Produce  json
// @Param    X-User-ID  header    string                        true  "Owner"
// @Param    body       body      domain.CreateReminderRequest  true  "Reminder payload"
// @Success  201        {object}  domain.Reminder
// @Failure  422        {object}  map[string]string
// @Router   /api/v1/reminders [post]
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateReminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rem, err := h.svc.Create(r.Context(), apimw.GetUserID(r.Context()), req)
	if err != nil {
		h.logger.Warn("create reminder failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rem)
}

// List handles GET /api/v1/reminders
//
// @Summary  List the caller's reminders
// @Tags     reminders
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/reminders [get]
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	rems, err := h.svc.List(r.Context(), apimw.GetUserID(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	if rems == nil {
		rems = []*domain.Reminder{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": rems, "total": len(rems)})
}

// Get handles GET /api/v1/reminders/{id}
func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	rem, err := h.svc.Get(r.Context(), apimw.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rem)
}

// Update handles PATCH /api/v1/reminders/{id}
//
// @Summary  Move or edit a reminder; a date in the past fires it now
// @Tags     reminders
// @Accept   json
// @Produce  json
// @Param    id    path      string                        true  "Reminder UUID"
// @Param    body  body      domain.UpdateReminderRequest  true  "Changed fields"
// @Success  200   {object}  domain.Reminder
// @Failure  400   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Router   /api/v1/reminders/{id} [patch]
func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateReminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rem, err := h.svc.Update(r.Context(), apimw.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rem)
}

// Delete handles DELETE /api/v1/reminders/{id}
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), apimw.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
