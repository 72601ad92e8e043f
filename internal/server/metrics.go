// Package server exposes Prometheus instrumentation for the relay.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the hub's Prometheus collectors. Construct one per
// registry; tests use a fresh prometheus.NewRegistry to avoid duplicate
// registration.
type Metrics struct {
	ConnectedClients   prometheus.Gauge
	ActiveParticipants prometheus.Gauge
	EventsTotal        *prometheus.CounterVec
	MessagesTotal      prometheus.Counter
	DroppedClients     prometheus.Counter
}

// NewMetrics registers the hub collectors with reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_connected_clients",
			Help: "Number of open WebSocket connections.",
		}),
		ActiveParticipants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_active_participants",
			Help: "Number of participants currently joined to the room.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_events_total",
			Help: "Inbound client events processed, by event name.",
		}, []string{"event"}),
		MessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_messages_total",
			Help: "Chat messages appended to the room log.",
		}),
		DroppedClients: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_dropped_clients_total",
			Help: "Clients dropped because their send buffer was full or closed.",
		}),
	}
}
