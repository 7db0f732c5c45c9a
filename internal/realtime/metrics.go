package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	subscribersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscribers",
			Help: "Connected event stream subscribers.",
		},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Events published to the hub, by type.",
		},
		[]string{"type"},
	)

	connectionsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_connections_dropped_total",
			Help: "Subscribers dropped because their send queue was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(subscribersGauge, eventsPublishedTotal, connectionsDroppedTotal)
}
