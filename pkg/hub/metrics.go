package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	eventsTotal   *prometheus.CounterVec
	eventduration *prometheus.HistogramVec
	connections   prometheus.Gauge
	activeGames   prometheus.GaugeFunc
	wsErrors      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, activeGames func() float64) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiar",
			Name:      "events_total",
			Help:      "Total number of gateway events processed",
		}, []string{"kind", "status"}),

		eventduration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fiar",
			Name:      "event_duration_seconds",
			Help:      "Gateway event processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fiar",
			Name:      "active_connections",
			Help:      "Number of open WebSocket connections",
		}),

		activeGames: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fiar",
			Name:      "active_games",
			Help:      "Number of live games in the registry",
		}, activeGames),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiar",
			Name:      "websocket_errors_total",
			Help:      "Total WebSocket errors by type",
		}, []string{"type"}),
	}
}
