package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "active_connections", Help: "Number of open realtime connections."},
	)
	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "active_rooms", Help: "Number of documents with at least one joined connection."},
	)
	MessagesRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "messages_relayed_total", Help: "Number of server-to-client messages queued by event."},
		[]string{"event"},
	)
	SlowPeersDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collab", Name: "slow_peers_dropped_total", Help: "Connections closed because their send buffer was full."},
	)
	Saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "saves_total", Help: "Document writes by kind and result."},
		[]string{"kind", "result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ActiveConnections)
	reg.MustRegister(ActiveRooms)
	reg.MustRegister(MessagesRelayed)
	reg.MustRegister(SlowPeersDropped)
	reg.MustRegister(Saves)
}

// ObserveSave records the outcome of a document write.
func ObserveSave(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Saves.WithLabelValues(kind, result).Inc()
}
