// Package metrics exposes Prometheus instrumentation for the broker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// AdmissionsTotal counts admission decisions by outcome. The label is
	// "admitted" or the rejection reason.
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barchat_admissions_total",
			Help: "Total number of connection admission decisions",
		},
		[]string{"outcome"},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "barchat_active_connections",
			Help: "Number of currently registered connections",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "barchat_active_rooms",
			Help: "Number of rooms with at least one registered connection",
		},
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barchat_messages_persisted_total",
			Help: "Total number of messages durably persisted",
		},
	)

	BroadcastsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barchat_broadcasts_delivered_total",
			Help: "Total number of per-member message deliveries",
		},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barchat_broadcasts_dropped_total",
			Help: "Total number of per-member deliveries dropped due to a slow or closed peer",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "barchat_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)
)

// SetBreakerState records a circuit breaker transition.
func SetBreakerState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
}
