package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	return prometheus.NewRegistry()
}

func TestMetricsCollect(t *testing.T) {
	reg := newTestRegistry(t)
	m := NewMetrics(reg)

	m.ConnectionsActive.Inc()
	m.ConnectionsActive.Inc()
	m.ConnectionsActive.Dec()
	m.EventCounter.WithLabelValues("channel:join", "inbound").Inc()
	m.DroppedFrames.Inc()
	m.BroadcastPublishErrors.Inc()
	m.HandlerErrors.WithLabelValues("bot:message").Inc()
	m.BotRequestDuration.Observe(0.25)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	conns, ok := byName["realtime_connections_active"]
	if !ok {
		t.Fatal("realtime_connections_active not registered")
	}
	if got := conns.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("connections gauge = %v, want 1", got)
	}

	events, ok := byName["realtime_events_total"]
	if !ok {
		t.Fatal("realtime_events_total not registered")
	}
	if got := events.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("event counter = %v, want 1", got)
	}

	for _, name := range []string{
		"realtime_dropped_frames_total",
		"realtime_broadcast_publish_errors_total",
		"realtime_handler_errors_total",
		"realtime_bot_request_duration_seconds",
	} {
		if _, ok := byName[name]; !ok {
			t.Errorf("%s not registered", name)
		}
	}
}
