package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the engine's operational signals.
//
// The metrics system is built on Prometheus and tracks:
//   - Live websocket connections and rooms (by kind)
//   - Event throughput by event name and direction
//   - Frames dropped to slow consumers
//   - Broadcast publish failures (cross-process fanout degradation)
//   - Bot completion volume and latency
type Metrics struct {
	// ConnectionsActive is a gauge of currently open websocket connections.
	ConnectionsActive prometheus.Gauge

	// RoomsActive tracks live rooms by kind.
	// Labels: kind (workspace|channel|conversation|bot)
	RoomsActive *prometheus.GaugeVec

	// EventCounter counts events by name and direction.
	// Labels: event, direction (inbound|outbound)
	EventCounter *prometheus.CounterVec

	// DroppedFrames counts outbound frames discarded because a
	// connection's send buffer was full.
	DroppedFrames prometheus.Counter

	// BroadcastPublishErrors counts failed publishes to the shared
	// pub/sub channel. Non-zero values mean fanout is degraded to
	// local-only delivery.
	BroadcastPublishErrors prometheus.Counter

	// HandlerErrors counts handler failures reported to clients.
	// Labels: event
	HandlerErrors *prometheus.CounterVec

	// BotRequestCounter counts AI completion calls.
	// Labels: status (success|error)
	BotRequestCounter *prometheus.CounterVec

	// BotRequestDuration measures AI completion latency in seconds.
	// Buckets: 0.1s .. 60s
	BotRequestDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a private
// registry so parallel packages do not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of currently open websocket connections",
		}),
		RoomsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realtime_rooms_active",
			Help: "Number of live rooms by kind",
		}, []string{"kind"}),
		EventCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Events processed by name and direction",
		}, []string{"event", "direction"}),
		DroppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "realtime_dropped_frames_total",
			Help: "Outbound frames dropped due to a full send buffer",
		}),
		BroadcastPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "realtime_broadcast_publish_errors_total",
			Help: "Failed publishes to the shared pub/sub channel",
		}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_handler_errors_total",
			Help: "Handler failures reported back to the originating connection",
		}, []string{"event"}),
		BotRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_bot_requests_total",
			Help: "AI completion calls by status",
		}, []string{"status"}),
		BotRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "realtime_bot_request_duration_seconds",
			Help:    "Duration of AI completion calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
}
