package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics exposes counters/histograms for routing and carrier flows.
type GatewayMetrics struct {
	backendInvocations *prometheus.CounterVec
	backendLatency     *prometheus.HistogramVec
	backendCost        *prometheus.CounterVec
	chainExhausted     prometheus.Counter
	carrierOps         *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		backendInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xonebot",
			Subsystem: "backend",
			Name:      "invocations_total",
			Help:      "Total generation backend invocations",
		}, []string{"backend", "status"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xonebot",
			Subsystem: "backend",
			Name:      "latency_seconds",
			Help:      "Latency of generation backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		backendCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xonebot",
			Subsystem: "backend",
			Name:      "cost_units_total",
			Help:      "Accumulated cost weight of backend invocations",
		}, []string{"backend"}),
		chainExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xonebot",
			Subsystem: "backend",
			Name:      "chain_exhausted_total",
			Help:      "Times every backend in a fallback chain failed",
		}),
		carrierOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xonebot",
			Subsystem: "carrier",
			Name:      "operations_total",
			Help:      "Total carrier provider operations",
		}, []string{"provider", "operation", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xonebot",
			Subsystem: "gateway",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.backendInvocations, m.backendLatency, m.backendCost,
		m.chainExhausted, m.carrierOps, m.webhookLatency,
	)
	return m
}

func (m *GatewayMetrics) ObserveBackend(backend, status string, seconds, cost float64) {
	if m == nil {
		return
	}
	m.backendInvocations.WithLabelValues(backend, status).Inc()
	m.backendLatency.WithLabelValues(backend).Observe(seconds)
	if status == "ok" && cost > 0 {
		m.backendCost.WithLabelValues(backend).Add(cost)
	}
}

func (m *GatewayMetrics) ObserveChainExhausted() {
	if m == nil {
		return
	}
	m.chainExhausted.Inc()
}

func (m *GatewayMetrics) ObserveCarrierOp(provider, operation, status string) {
	if m == nil {
		return
	}
	m.carrierOps.WithLabelValues(provider, operation, status).Inc()
}

func (m *GatewayMetrics) ObserveWebhookLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}
