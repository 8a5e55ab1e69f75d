package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type escrowMetrics struct {
	ordersCreated prometheus.Counter
	transitions   *prometheus.CounterVec
	guardFailures *prometheus.CounterVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *escrowMetrics
)

// Escrow returns the metrics registry tracking order lifecycle activity.
func Escrow() *escrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &escrowMetrics{
			ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "registry",
				Name:      "orders_created_total",
				Help:      "Count of orders minted by the registry.",
			}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "orders",
				Name:      "transitions_total",
				Help:      "Count of successful order transitions segmented by operation.",
			}, []string{"op"}),
			guardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "orders",
				Name:      "guard_failures_total",
				Help:      "Count of rejected order transitions segmented by operation.",
			}, []string{"op"}),
		}
		prometheus.MustRegister(escrowRegistry.ordersCreated, escrowRegistry.transitions, escrowRegistry.guardFailures)
	})
	return escrowRegistry
}

// RecordOrderCreated increments the registry creation counter.
func (m *escrowMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordTransition increments the transition counter for the operation.
func (m *escrowMetrics) RecordTransition(op string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeOp(op)).Inc()
}

// RecordGuardFailure increments the rejection counter for the operation.
func (m *escrowMetrics) RecordGuardFailure(op string) {
	if m == nil {
		return
	}
	m.guardFailures.WithLabelValues(normalizeOp(op)).Inc()
}

func normalizeOp(op string) string {
	trimmed := strings.TrimSpace(strings.ToLower(op))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
