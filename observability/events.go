package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	notices *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking ledger notices consumed from
// the event log.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			notices: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "events",
				Name:      "notices_total",
				Help:      "Count of ledger notices decoded from log queries segmented by event.",
			}, []string{"event"}),
		}
		prometheus.MustRegister(eventRegistry.notices)
	})
	return eventRegistry
}

// RecordNotices adds n decoded notices of the supplied event.
func (m *eventMetrics) RecordNotices(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	normalized := strings.TrimSpace(event)
	if normalized == "" {
		normalized = "Unknown"
	}
	m.notices.WithLabelValues(normalized).Add(float64(n))
}
