package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/api/handler"
	apimw "github.com/notifyhub/pantry-pipeline/internal/api/middleware"
	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

// Services bundles what the HTTP surface calls into.
type Services struct {
	Items         *service.ItemService
	Reminders     *service.ReminderService
	Notifications *service.NotificationService
	Index         expiry.Index
	Scheduler     *scheduler.Scheduler
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svcs Services,
	checks map[string]handler.Check,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.UserID)             // X-User-ID onto the context
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	ih := handler.NewItemHandler(svcs.Items, logger)
	rh := handler.NewReminderHandler(svcs.Reminders, logger)
	nh := handler.NewNotificationHandler(svcs.Notifications, logger)
	mh := handler.NewMetricsHandler(svcs.Index, svcs.Scheduler)
	hh := handler.NewHealthHandler(checks)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Post("/", ih.Create)
			r.Get("/", ih.List)
			r.Get("/{id}", ih.Get)
			r.Patch("/{id}", ih.Update)
			r.Delete("/{id}", ih.Delete)
		})

		r.Route("/reminders", func(r chi.Router) {
			r.Post("/", rh.Create)
			r.Get("/", rh.List)
			r.Get("/{id}", rh.Get)
			r.Patch("/{id}", rh.Update)
			r.Delete("/{id}", rh.Delete)
		})

		// read-all is registered before /{id} routes so chi does not treat
		// the literal as an ID.
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", nh.List)
			r.Patch("/read-all", nh.MarkAllRead)
			r.Patch("/{id}/read", nh.MarkRead)
			r.Delete("/{id}", nh.Delete)
			r.Delete("/", nh.DeleteAll)
		})

		// JSON backlog snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
