package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_commands_total",
			Help: "Commands handled by the dispatch coordinator, by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	callsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_calls",
			Help: "Current number of calls per status.",
		},
		[]string{"status"},
	)

	pendingQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_pending_queue_depth",
			Help: "Calls waiting for resources.",
		},
	)

	consistencyFaultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_consistency_faults_total",
			Help: "Reconciliations that found incremental counts out of step with the registry.",
		},
	)

	travelDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_call_travel_duration_seconds",
			Help:    "Time from dispatch to arrival on scene.",
			Buckets: []float64{60, 120, 180, 300, 600, 900, 1200, 1800, 2700, 3600},
		},
		[]string{"incident_type", "priority"},
	)

	onSceneDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_call_on_scene_duration_seconds",
			Help:    "Time from arrival to clearance.",
			Buckets: []float64{120, 300, 600, 900, 1200, 1800, 2700, 3600, 5400, 7200, 10800},
		},
		[]string{"incident_type", "priority"},
	)

	resolutionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_call_resolution_duration_seconds",
			Help:    "Time from receipt to clearance or cancellation.",
			Buckets: []float64{300, 600, 1200, 1800, 2700, 3600, 5400, 7200, 10800, 14400, 28800, 43200},
		},
		[]string{"incident_type", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		commandsTotal,
		callsByStatus,
		pendingQueueDepth,
		consistencyFaultsTotal,
		travelDurationSeconds,
		onSceneDurationSeconds,
		resolutionDurationSeconds,
	)
}

func observeSummary(s Summary) {
	for status, n := range s.Counts() {
		callsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

func observeTransition(c Call) {
	switch c.Status {
	case StatusOnScene:
		if c.DispatchedAt != nil && c.ArrivedAt != nil {
			if d := c.ArrivedAt.Sub(*c.DispatchedAt); d > 0 {
				travelDurationSeconds.WithLabelValues(string(c.IncidentType), string(c.Priority)).Observe(d.Seconds())
			}
		}
	case StatusCleared:
		if c.ArrivedAt != nil && c.ClearedAt != nil {
			if d := c.ClearedAt.Sub(*c.ArrivedAt); d > 0 {
				onSceneDurationSeconds.WithLabelValues(string(c.IncidentType), string(c.Priority)).Observe(d.Seconds())
			}
		}
		if c.ClearedAt != nil {
			resolutionDurationSeconds.WithLabelValues(string(c.IncidentType), string(c.Status)).Observe(c.ClearedAt.Sub(c.ReceivedAt).Seconds())
		}
	case StatusCancelled:
		if c.CancelledAt != nil {
			resolutionDurationSeconds.WithLabelValues(string(c.IncidentType), string(c.Status)).Observe(c.CancelledAt.Sub(c.ReceivedAt).Seconds())
		}
	}
}
