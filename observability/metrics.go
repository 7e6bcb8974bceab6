package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics bundles the collectors shared by the coordinators, the gas
// policy and the log reconciler.
type VaultMetrics struct {
	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	gasEstimates *prometheus.CounterVec
	logQueries   *prometheus.CounterVec
	pending      *prometheus.GaugeVec
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// Vault returns the lazily-initialised metrics registry for coordinator
// activity.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "coordinator",
				Name:      "requests_total",
				Help:      "Total coordinator operations segmented by component, operation, and outcome.",
			}, []string{"component", "op", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "coordinator",
				Name:      "errors_total",
				Help:      "Total coordinator failures segmented by component, operation, and error kind.",
			}, []string{"component", "op", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vault",
				Subsystem: "coordinator",
				Name:      "duration_seconds",
				Help:      "Latency distribution for coordinator operations including confirmation waits.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
			}, []string{"component", "op"}),
			gasEstimates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "gas",
				Name:      "estimates_total",
				Help:      "Gas limits produced per preset, segmented by whether the value was simulated, defaulted, or failed.",
			}, []string{"preset", "source"}),
			logQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "reconcile",
				Name:      "queries_total",
				Help:      "Event log window queries segmented by event, window size, and outcome.",
			}, []string{"event", "window", "outcome"}),
			pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vault",
				Subsystem: "monitor",
				Name:      "pending",
				Help:      "Number of live items observed by the last monitor refresh.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			vaultRegistry.requests,
			vaultRegistry.errors,
			vaultRegistry.latency,
			vaultRegistry.gasEstimates,
			vaultRegistry.logQueries,
			vaultRegistry.pending,
		)
	})
	return vaultRegistry
}

// ObserveOperation records the outcome and latency of a coordinator call.
func (m *VaultMetrics) ObserveOperation(component, op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	component = label(component)
	op = label(op)
	m.requests.WithLabelValues(component, op, label(outcome)).Inc()
	m.latency.WithLabelValues(component, op).Observe(elapsed.Seconds())
}

// RecordError increments the failure counter for the supplied error kind.
func (m *VaultMetrics) RecordError(component, op, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(label(component), label(op), label(kind)).Inc()
}

// RecordGasEstimate counts a gas limit decision. Source is one of
// simulated, default or failed.
func (m *VaultMetrics) RecordGasEstimate(preset, source string) {
	if m == nil {
		return
	}
	m.gasEstimates.WithLabelValues(label(preset), label(source)).Inc()
}

// RecordLogQuery counts a log window query.
func (m *VaultMetrics) RecordLogQuery(event string, window uint64, outcome string) {
	if m == nil {
		return
	}
	m.logQueries.WithLabelValues(label(event), strconv.FormatUint(window, 10), label(outcome)).Inc()
}

// SetPending updates the live item gauge for kind.
func (m *VaultMetrics) SetPending(kind string, count int) {
	if m == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	m.pending.WithLabelValues(label(kind)).Set(float64(count))
}

func label(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
