package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// Metrics groups all Prometheus instruments used across the pipeline.
// Registered once at startup via New(); its methods are handed to workers
// and the publisher as hooks so those packages stay free of prometheus.
type Metrics struct {
	ItemsExpiredTotal    prometheus.Counter
	EventsPublished      *prometheus.CounterVec
	EventsConsumed       *prometheus.CounterVec
	NotificationsCreated *prometheus.CounterVec
	JobsFired            *prometheus.CounterVec
	ExpirationIndexDepth prometheus.Gauge
	CycleDuration        *prometheus.HistogramVec
}

// New registers all instruments with reg and returns the populated Metrics.
// A custom registry keeps tests isolated from the global default.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pantry_items_expired_total",
			Help: "Items moved from Active to Expired by the expiration worker.",
		}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_events_published_total",
			Help: "Events appended to the notification stream.",
		}, []string{"type"}),

		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_events_consumed_total",
			Help: "Stream messages handled by the notification consumer, by outcome.",
		}, []string{"type", "outcome"}),

		NotificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_notifications_created_total",
			Help: "Notification records inserted.",
		}, []string{"kind"}),

		JobsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_jobs_fired_total",
			Help: "Scheduled job executions, by job name and result.",
		}, []string{"job", "result"}),

		ExpirationIndexDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pantry_expiration_index_depth",
			Help: "Entries currently waiting in the expiration index.",
		}),

		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pantry_worker_cycle_seconds",
			Help:    "Duration of one polling cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"worker"}),
	}

	reg.MustRegister(
		m.ItemsExpiredTotal,
		m.EventsPublished,
		m.EventsConsumed,
		m.NotificationsCreated,
		m.JobsFired,
		m.ExpirationIndexDepth,
		m.CycleDuration,
	)

	return m
}

func (m *Metrics) ItemExpired() { m.ItemsExpiredTotal.Inc() }

func (m *Metrics) EventPublished(t domain.EventType) {
	m.EventsPublished.WithLabelValues(string(t)).Inc()
}

// EventConsumed records one handled message. t is empty for payloads that
// could not be decoded.
func (m *Metrics) EventConsumed(t domain.EventType, outcome string) {
	if t == "" {
		t = "unknown"
	}
	m.EventsConsumed.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) NotificationCreated(kind domain.EventType) {
	m.NotificationsCreated.WithLabelValues(string(kind)).Inc()
}

// JobFired matches scheduler.DispatcherConfig.OnFired.
func (m *Metrics) JobFired(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobsFired.WithLabelValues(name, result).Inc()
}

func (m *Metrics) SetIndexDepth(n int64) { m.ExpirationIndexDepth.Set(float64(n)) }

func (m *Metrics) ObserveCycle(worker string, d time.Duration) {
	m.CycleDuration.WithLabelValues(worker).Observe(d.Seconds())
}
