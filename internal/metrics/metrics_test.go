package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/metrics"
)

// gathered returns the value of the series of family name whose labels
// contain every pair in want.
func gathered(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			match := true
			for _, l := range m.GetLabel() {
				if v, ok := want[l.GetName()]; ok && v != l.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("series %s%v not found", name, want)
	return 0
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ItemExpired()
	m.ItemExpired()
	m.EventPublished(domain.EventItemExpired)
	m.EventConsumed(domain.EventReminderDue, "created")
	m.EventConsumed("", "dropped")
	m.NotificationCreated(domain.EventReminderDue)
	m.JobFired("send reminder", nil)
	m.JobFired("send reminder", errors.New("boom"))
	m.SetIndexDepth(7)
	m.ObserveCycle("expiration", 20*time.Millisecond)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"pantry_items_expired_total", nil, 2},
		{"pantry_events_published_total", map[string]string{"type": "item.expired"}, 1},
		{"pantry_events_consumed_total", map[string]string{"type": "unknown", "outcome": "dropped"}, 1},
		{"pantry_notifications_created_total", map[string]string{"kind": "reminder.due"}, 1},
		{"pantry_jobs_fired_total", map[string]string{"result": "error"}, 1},
		{"pantry_expiration_index_depth", nil, 7},
		{"pantry_worker_cycle_seconds", map[string]string{"worker": "expiration"}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := gathered(t, reg, tc.name, tc.labels); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
