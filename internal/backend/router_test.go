package backend

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xonelabs/xonebot/internal/observability/metrics"
	"github.com/xonelabs/xonebot/pkg/logging"
)

// stubBackend is a scriptable backend for router tests.
type stubBackend struct {
	name  string
	text  string
	err   error
	slow  time.Duration
	calls int
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Generate(ctx context.Context, prompt string) (string, error) {
	b.calls++
	if b.slow > 0 {
		select {
		case <-time.After(b.slow):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if b.err != nil {
		return "", b.err
	}
	return b.text, nil
}

func testRouterConfig() RouterConfig {
	return RouterConfig{
		CostOrder: []string{"groq", "bedrock", "gemini"},
		Costs:     map[string]float64{"groq": 0.001, "bedrock": 0.01, "gemini": 0.02},
		Preferred: map[Complexity]string{
			ComplexitySimple:       "groq",
			ComplexityModerate:     "groq",
			ComplexityComplex:      "bedrock",
			ComplexityMultilingual: "gemini",
		},
		DefaultLanguage: "en",
	}
}

func newTestRouter(t *testing.T, cfg RouterConfig, backends ...Backend) *Router {
	t.Helper()
	router, err := NewRouter(backends, cfg, logging.Default(), metrics.NewGatewayMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func TestChainsAreCheapestFirstAfterPreferred(t *testing.T) {
	router := newTestRouter(t, testRouterConfig(),
		&stubBackend{name: "groq"}, &stubBackend{name: "bedrock"}, &stubBackend{name: "gemini"})

	cases := map[string][]string{
		"groq":    {"groq", "bedrock", "gemini"},
		"bedrock": {"bedrock", "groq", "gemini"},
		"gemini":  {"gemini", "groq", "bedrock"},
	}
	for head, want := range cases {
		if got := router.Chain(head); !reflect.DeepEqual(got, want) {
			t.Errorf("Chain(%s) = %v, want %v", head, got, want)
		}
	}
}

func TestRouteShortCircuitsOnFirstSuccess(t *testing.T) {
	groq := &stubBackend{name: "groq", text: "hi there"}
	bedrock := &stubBackend{name: "bedrock", text: "unused"}
	gemini := &stubBackend{name: "gemini", text: "unused"}
	router := newTestRouter(t, testRouterConfig(), groq, bedrock, gemini)

	result := router.Route(context.Background(), "I'd like two lattes", Request{Prompt: "p", Language: "en"})

	if result.Text != "hi there" || result.Backend != "groq" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Complexity != ComplexityModerate {
		t.Errorf("expected moderate classification, got %s", result.Complexity)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", len(result.Attempts))
	}
	if bedrock.calls != 0 || gemini.calls != 0 {
		t.Error("expected later chain members untouched")
	}
}

func TestRoutePrefersReasoningBackendForComplex(t *testing.T) {
	groq := &stubBackend{name: "groq", text: "unused"}
	bedrock := &stubBackend{name: "bedrock", text: "careful answer"}
	gemini := &stubBackend{name: "gemini", text: "unused"}
	router := newTestRouter(t, testRouterConfig(), groq, bedrock, gemini)

	result := router.Route(context.Background(), "no milk, I'm allergic", Request{Prompt: "p", Language: "en"})
	if result.Backend != "bedrock" || result.Complexity != ComplexityComplex {
		t.Fatalf("expected bedrock for complex, got %+v", result)
	}
	if groq.calls != 0 {
		t.Error("expected cheapest backend skipped when not preferred")
	}
}

func TestRouteFallsBackOnFailure(t *testing.T) {
	groq := &stubBackend{name: "groq", err: errors.New("rate limited")}
	bedrock := &stubBackend{name: "bedrock", text: "recovered"}
	gemini := &stubBackend{name: "gemini", text: "unused"}
	router := newTestRouter(t, testRouterConfig(), groq, bedrock, gemini)

	result := router.Route(context.Background(), "hello", Request{Prompt: "p", Language: "en"})
	if result.Text != "recovered" || result.Backend != "bedrock" {
		t.Fatalf("expected fallback to bedrock, got %+v", result)
	}
	if len(result.Attempts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(result.Attempts))
	}
	if result.Attempts[0].Err == nil {
		t.Error("expected first attempt to record the failure")
	}
}

func TestRouteChainExhaustionReturnsOneApology(t *testing.T) {
	groq := &stubBackend{name: "groq", err: errors.New("down")}
	bedrock := &stubBackend{name: "bedrock", err: errors.New("down")}
	gemini := &stubBackend{name: "gemini", err: errors.New("down")}
	router := newTestRouter(t, testRouterConfig(), groq, bedrock, gemini)

	result := router.Route(context.Background(), "hello", Request{Prompt: "p", Language: "en"})

	if !result.Exhausted {
		t.Fatal("expected exhausted chain")
	}
	if result.Text != ApologyResponse {
		t.Errorf("expected static apology, got %q", result.Text)
	}
	// Exactly N attempts for N backends, not more, not fewer.
	if len(result.Attempts) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(result.Attempts))
	}
	if groq.calls != 1 || bedrock.calls != 1 || gemini.calls != 1 {
		t.Errorf("expected each backend tried once, got %d/%d/%d", groq.calls, bedrock.calls, gemini.calls)
	}
}

func TestRouteTimeoutAdvancesChain(t *testing.T) {
	cfg := testRouterConfig()
	cfg.Timeout = 20 * time.Millisecond

	slow := &stubBackend{name: "groq", text: "too late", slow: 200 * time.Millisecond}
	bedrock := &stubBackend{name: "bedrock", text: "on time"}
	gemini := &stubBackend{name: "gemini", text: "unused"}
	router := newTestRouter(t, cfg, slow, bedrock, gemini)

	result := router.Route(context.Background(), "hello", Request{Prompt: "p", Language: "en"})
	if result.Backend != "bedrock" || result.Text != "on time" {
		t.Fatalf("expected timeout to advance the chain, got %+v", result)
	}
	if !errors.Is(result.Attempts[0].Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error on first attempt, got %v", result.Attempts[0].Err)
	}
}

func TestRouteMultilingualUsesGemini(t *testing.T) {
	groq := &stubBackend{name: "groq", text: "unused"}
	bedrock := &stubBackend{name: "bedrock", text: "unused"}
	gemini := &stubBackend{name: "gemini", text: "labdien!"}
	router := newTestRouter(t, testRouterConfig(), groq, bedrock, gemini)

	result := router.Route(context.Background(), "sveiki, ko jūs iesakāt?", Request{Prompt: "p", Language: "lv"})
	if result.Backend != "gemini" || result.Complexity != ComplexityMultilingual {
		t.Fatalf("expected gemini for multilingual, got %+v", result)
	}
}

func TestNewRouterValidation(t *testing.T) {
	if _, err := NewRouter(nil, RouterConfig{}, nil, nil); err == nil {
		t.Error("expected error for empty backend list")
	}

	cfg := RouterConfig{CostOrder: []string{"missing"}}
	if _, err := NewRouter([]Backend{&stubBackend{name: "groq"}}, cfg, nil, nil); err == nil {
		t.Error("expected error for unknown backend in cost order")
	}
}

func TestNewRouterRejectsPreferredOutsideCostOrder(t *testing.T) {
	// A preferred backend that exists but is absent from the cost order has
	// no fallback chain; accepting it would panic on the first matching
	// message at Route time.
	cfg := RouterConfig{
		CostOrder: []string{"groq"},
		Preferred: map[Complexity]string{ComplexityComplex: "bedrock"},
	}
	backends := []Backend{&stubBackend{name: "groq"}, &stubBackend{name: "bedrock"}}
	if _, err := NewRouter(backends, cfg, nil, nil); err == nil {
		t.Fatal("expected error for preferred backend missing from cost order")
	}

	// The same set with a complete cost order routes fine.
	cfg.CostOrder = []string{"groq", "bedrock"}
	router, err := NewRouter(backends, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	backends[1].(*stubBackend).text = "careful answer"
	result := router.Route(context.Background(), "I'm allergic to nuts", Request{Prompt: "p", Language: "en"})
	if result.Backend != "bedrock" {
		t.Errorf("expected bedrock, got %+v", result)
	}
}
