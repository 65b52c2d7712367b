package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFlowMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFlowMetrics(reg)
	m.ObserveTransition("booking", "slot_fetching")
	m.ObserveTransition("booking", "slot_fetching")
	m.ObserveUpstream("fetch_slots", "ok", 0.2)
	m.ObserveDropped("booking", "fetch_slots")

	if got := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("booking", "slot_fetching")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.upstreamTotal.WithLabelValues("fetch_slots", "ok")); got != 1 {
		t.Fatalf("expected 1 upstream call, got %v", got)
	}
	if got := testutil.ToFloat64(m.droppedTotal.WithLabelValues("booking", "fetch_slots")); got != 1 {
		t.Fatalf("expected 1 dropped response, got %v", got)
	}
	if n := testutil.CollectAndCount(m.upstreamLatency); n != 1 {
		t.Fatalf("expected 1 latency series, got %d", n)
	}
}

func TestFlowMetricsNilSafe(t *testing.T) {
	var m *FlowMetrics
	m.ObserveTransition("payment", "paid")
	m.ObserveUpstream("confirm_card", "network_error", 0.1)
	m.ObserveDropped("payment", "create_intent")
}
