package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventflex_messages_persisted_total",
		Help: "Messages durably appended to a conversation.",
	})

	RelayDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventflex_relay_deliveries_total",
		Help: "Events handed to a live session queue, by event type.",
	}, []string{"type"})

	RelayDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventflex_relay_dropped_total",
		Help: "Events dropped because a session queue was full or closed, by event type.",
	}, []string{"type"})

	RelaySessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventflex_relay_sessions",
		Help: "Registered live sessions in this process.",
	})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
