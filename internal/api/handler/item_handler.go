package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/pantry-pipeline/internal/api/middleware"
	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

// ItemHandler handles pantry item CRUD endpoints.
type ItemHandler struct {
	svc    *service.ItemService
	logger *zap.Logger
}

func NewItemHandler(svc *service.ItemService, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/items
//
// @Summary  Add an item; an expiry date in the past expires it immediately
// @Tags     items
// @Accept   json
// @Produce  json
// @Param    X-User-ID  header    string                    true  "Owner"
// @Param    body       body      domain.CreateItemRequest  true  "Item payload"
// @Success  201        {object}  domain.Item
// @Failure  401        {object}  map[string]string
// @Failure  422        {object}  map[string]string
// @Router   /api/v1/items [post]
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	it, err := h.svc.Create(r.Context(), apimw.GetUserID(r.Context()), req)
	if err != nil {
		h.logger.Warn("create item failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, it)
}

// List handles GET /api/v1/items
//
// @Summary  List the caller's items, newest first
// @Tags     items
// @Produce  json
// @Param    X-User-ID  header    string  true  "Owner"
// @Success  200        {object}  map[string]any
// @Router   /api/v1/items [get]
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), apimw.GetUserID(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	if items == nil {
		items = []*domain.Item{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": items, "total": len(items)})
}

// Get handles GET /api/v1/items/{id}
//
// @Summary  Get one item
// @Tags     items
// @Produce  json
// @Param    id   path      string  true  "Item UUID"
// @Success  200  {object}  domain.Item
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/items/{id} [get]
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.Get(r.Context(), apimw.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

// Update handles PATCH /api/v1/items/{id}
//
// @Summary  Partially update an item and re-derive its expiration state
// @Tags     items
// @Accept   json
// @Produce  json
// @Param    id    path      string                    true  "Item UUID"
// @Param    body  body      domain.UpdateItemRequest  true  "Changed fields"
// @Success  200   {object}  domain.Item
// @Failure  400   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/items/{id} [patch]
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	it, err := h.svc.Update(r.Context(), apimw.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

// Delete handles DELETE /api/v1/items/{id}
//
// @Summary  Delete an item
// @Tags     items
// @Param    id   path  string  true  "Item UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/items/{id} [delete]
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), apimw.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
