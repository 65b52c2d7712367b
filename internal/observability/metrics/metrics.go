package metrics

import "github.com/prometheus/client_golang/prometheus"

// FlowMetrics exposes counters/histograms for the booking and payment flows.
type FlowMetrics struct {
	transitionsTotal *prometheus.CounterVec
	upstreamTotal    *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	droppedTotal     *prometheus.CounterVec
}

func NewFlowMetrics(reg prometheus.Registerer) *FlowMetrics {
	m := &FlowMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homevisit",
			Subsystem: "flow",
			Name:      "phase_transitions_total",
			Help:      "Total phase transitions per flow",
		}, []string{"flow", "phase"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homevisit",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total calls to scheduling, intent and processor services",
		}, []string{"operation", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homevisit",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of upstream calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homevisit",
			Subsystem: "flow",
			Name:      "stale_responses_total",
			Help:      "Upstream responses discarded because the flow moved on",
		}, []string{"flow", "operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.upstreamTotal, m.upstreamLatency, m.droppedTotal)
	return m
}

func (m *FlowMetrics) ObserveTransition(flow, phase string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(flow, phase).Inc()
}

// ObserveUpstream records one upstream call. outcome is "ok", "service_error"
// or "network_error".
func (m *FlowMetrics) ObserveUpstream(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamTotal.WithLabelValues(operation, outcome).Inc()
	m.upstreamLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *FlowMetrics) ObserveDropped(flow, operation string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(flow, operation).Inc()
}
