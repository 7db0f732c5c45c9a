package fieldunit

import "github.com/prometheus/client_golang/prometheus"

var messagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fieldunit_messages_total",
		Help: "Reports received from field units, by kind and result.",
	},
	[]string{"kind", "outcome"},
)

func init() {
	prometheus.MustRegister(messagesTotal)
}
