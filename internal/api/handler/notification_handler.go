package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/pantry-pipeline/internal/api/middleware"
	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

// NotificationHandler serves the per-user notification inbox.
// Notifications are only created by the event consumer.
type NotificationHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/notifications
//
// @Summary  List the caller's notifications, newest first
// @Tags     notifications
// @Produce  json
// @Param    X-User-ID  header    string  true  "Owner"
// @Success  200        {object}  map[string]any
// @Router   /api/v1/notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ns, err := h.svc.List(r.Context(), apimw.GetUserID(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	if ns == nil {
		ns = []*domain.Notification{}
	}
	unread := 0
	for _, n := range ns {
		if !n.IsRead {
			unread++
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":   ns,
		"total":  len(ns),
		"unread": unread,
	})
}

// MarkRead handles PATCH /api/v1/notifications/{id}/read
//
// @Summary  Mark one unread notification read
// @Tags     notifications
// @Produce  json
// @Param    id   path      string  true  "Notification UUID"
// @Success  200  {object}  domain.Notification
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkRead(r.Context(), apimw.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// MarkAllRead handles PATCH /api/v1/notifications/read-all
//
// @Summary  Mark every unread notification read
// @Tags     notifications
// @Produce  json
// @Success  200  {object}  map[string]int64
// @Failure  404  {object}  map[string]string  "Nothing unread"
// @Router   /api/v1/notifications/read-all [patch]
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllRead(r.Context(), apimw.GetUserID(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Delete handles DELETE /api/v1/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), apimw.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll handles DELETE /api/v1/notifications
//
// @Summary  Delete all of the caller's notifications
// @Tags     notifications
// @Produce  json
// @Success  200  {object}  map[string]int64
// @Router   /api/v1/notifications [delete]
func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	owner := apimw.GetUserID(r.Context())
	n, err := h.svc.DeleteAll(r.Context(), owner)
	if err != nil {
		h.logger.Error("delete all notifications failed", zap.String("user_id", owner), zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
