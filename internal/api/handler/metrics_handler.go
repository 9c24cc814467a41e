package handler

import (
	"net/http"

	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

// MetricsHandler serves a human-readable JSON snapshot of the pipeline's
// backlog. Raw Prometheus metrics are available at /metrics via promhttp
// and are separate from this endpoint.
type MetricsHandler struct {
	index expiry.Index
	sched *scheduler.Scheduler
}

func NewMetricsHandler(index expiry.Index, sched *scheduler.Scheduler) *MetricsHandler {
	return &MetricsHandler{index: index, sched: sched}
}

// GetMetrics handles GET /api/v1/metrics
//
// @Summary  Expiration index depth and scheduled reminder jobs
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	depth, err := h.index.Len(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "expiration index unavailable")
		return
	}
	jobs, err := h.sched.Jobs(r.Context(), service.SendReminderJob)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}

	var next any
	if e, ok, err := h.index.Next(r.Context()); err == nil && ok {
		next = map[string]any{"item_id": e.ItemID, "expires_at": e.ExpiresAt}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"expiration_index_depth": depth,
		"next_expiration":        next,
		"scheduled_reminders":    len(jobs),
	})
}
