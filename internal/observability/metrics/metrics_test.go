package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveBackendCountsAndCost(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)

	m.ObserveBackend("groq", "ok", 0.2, 0.001)
	m.ObserveBackend("groq", "error", 0.1, 0.001)
	m.ObserveChainExhausted()
	m.ObserveCarrierOp("twilio", "search", "ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	byName := map[string]*dto.MetricFamily{}
	for _, fam := range families {
		byName[fam.GetName()] = fam
	}

	inv := byName["xonebot_backend_invocations_total"]
	if inv == nil || len(inv.Metric) != 2 {
		t.Fatalf("expected 2 invocation series, got %v", inv)
	}

	cost := byName["xonebot_backend_cost_units_total"]
	if cost == nil || len(cost.Metric) != 1 {
		t.Fatalf("expected cost recorded only for ok status, got %v", cost)
	}
	if got := cost.Metric[0].Counter.GetValue(); got != 0.001 {
		t.Errorf("expected cost 0.001, got %v", got)
	}

	if byName["xonebot_backend_chain_exhausted_total"].Metric[0].Counter.GetValue() != 1 {
		t.Error("expected chain exhausted counter = 1")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *GatewayMetrics
	m.ObserveBackend("x", "ok", 0, 0)
	m.ObserveChainExhausted()
	m.ObserveCarrierOp("x", "y", "z")
	m.ObserveWebhookLatency("chat", 0.1)
}
