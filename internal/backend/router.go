package backend

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xonelabs/xonebot/internal/observability/metrics"
	"github.com/xonelabs/xonebot/pkg/logging"
)

// ApologyResponse is returned when every backend in a chain fails. A
// deliberate policy: availability over failure transparency to the end
// user; the outage is flagged in monitoring instead.
const ApologyResponse = "I apologize, I'm having trouble processing your request. Please try again or contact support."

const defaultInvokeTimeout = 20 * time.Second

// RouterConfig wires the router's immutable selection data.
type RouterConfig struct {
	// CostOrder lists backend names cheapest-first; it defines both the
	// cost ranking and the fallback tail after any preferred backend.
	CostOrder []string
	// Costs is the per-invocation cost weight of each backend.
	Costs map[string]float64
	// Preferred maps complexity to the backend tried first.
	Preferred map[Complexity]string
	// Timeout bounds each backend call; a timeout advances the chain like
	// any other failure.
	Timeout         time.Duration
	DefaultLanguage string
}

// Router classifies messages and executes them against a fallback chain of
// backends.
type Router struct {
	backends   map[string]Backend
	chains     map[string][]string
	costs      map[string]float64
	preferred  map[Complexity]string
	fallback   string
	timeout    time.Duration
	classifier *Classifier
	logger     *logging.Logger
	metrics    *metrics.GatewayMetrics
	tracer     trace.Tracer
}

// NewRouter builds a router over the given backends. Chains are computed
// once here: every preferred backend is followed by the remaining backends
// cheapest-first.
func NewRouter(backends []Backend, cfg RouterConfig, logger *logging.Logger, m *metrics.GatewayMetrics) (*Router, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("backend: at least one backend is required")
	}
	byName := make(map[string]Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}

	costOrder := cfg.CostOrder
	if len(costOrder) == 0 {
		for _, b := range backends {
			costOrder = append(costOrder, b.Name())
		}
	}
	for _, name := range costOrder {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("backend: cost order names unknown backend %q", name)
		}
	}

	chains := make(map[string][]string, len(costOrder))
	for _, head := range costOrder {
		chain := []string{head}
		for _, name := range costOrder {
			if name != head {
				chain = append(chain, name)
			}
		}
		chains[head] = chain
	}

	preferred := cfg.Preferred
	if preferred == nil {
		cheapest := costOrder[0]
		preferred = map[Complexity]string{
			ComplexitySimple:       cheapest,
			ComplexityModerate:     cheapest,
			ComplexityComplex:      cheapest,
			ComplexityMultilingual: cheapest,
		}
	}
	// Preferred backends must appear in the cost order, or they have no
	// chain to walk at Route time.
	for complexity, name := range preferred {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("backend: preferred backend %q for %s is unknown", name, complexity)
		}
		if _, ok := chains[name]; !ok {
			return nil, fmt.Errorf("backend: preferred backend %q for %s is missing from the cost order", name, complexity)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultInvokeTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Router{
		backends:   byName,
		chains:     chains,
		costs:      cfg.Costs,
		preferred:  preferred,
		fallback:   costOrder[0],
		timeout:    timeout,
		classifier: NewClassifier(cfg.DefaultLanguage),
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer("xonebot.internal.backend"),
	}, nil
}

// Route classifies the message, walks the preferred backend's fallback
// chain, and short-circuits on the first success. If the whole chain fails
// it returns the static apology with Exhausted set; it never returns an
// error for chain exhaustion.
func (r *Router) Route(ctx context.Context, message string, req Request) *Result {
	ctx, span := r.tracer.Start(ctx, "backend.route")
	defer span.End()

	complexity := r.classifier.Classify(message, req.Language, req.Intent)
	head, ok := r.preferred[complexity]
	if !ok {
		head = r.fallback
	}
	chain := r.chains[head]
	span.SetAttributes(
		attribute.String("xonebot.backend.complexity", string(complexity)),
		attribute.String("xonebot.backend.preferred", head),
	)

	result := &Result{Complexity: complexity}
	for _, name := range chain {
		b := r.backends[name]

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		start := time.Now()
		text, err := b.Generate(callCtx, req.Prompt)
		latency := time.Since(start)
		cancel()

		cost := r.costs[name]
		attempt := Invocation{Backend: name, Latency: latency, Cost: cost, Complexity: complexity, Err: err}
		result.Attempts = append(result.Attempts, attempt)

		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.ObserveBackend(name, status, latency.Seconds(), cost)

		if err != nil {
			span.RecordError(err)
			r.logger.Warn("backend invocation failed",
				"backend", name, "complexity", string(complexity),
				"latency_ms", latency.Milliseconds(), "error", err,
			)
			continue
		}

		result.Text = text
		result.Backend = name
		result.Latency = latency
		result.Cost = cost
		r.logger.Info("backend invocation finished",
			"backend", name, "complexity", string(complexity),
			"latency_ms", latency.Milliseconds(),
		)
		return result
	}

	r.metrics.ObserveChainExhausted()
	last := result.Attempts[len(result.Attempts)-1]
	r.logger.Warn("fallback chain exhausted",
		"preferred", head, "attempts", len(result.Attempts), "last_error", last.Err,
	)
	result.Text = ApologyResponse
	result.Exhausted = true
	return result
}

// Chain exposes the computed fallback chain for a preferred backend.
// Useful for startup logging and tests.
func (r *Router) Chain(head string) []string {
	chain := r.chains[head]
	out := make([]string, len(chain))
	copy(out, chain)
	return out
}
