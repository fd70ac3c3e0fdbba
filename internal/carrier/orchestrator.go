package carrier

import (
	"context"
	"fmt"
	"strings"

	"github.com/xonelabs/xonebot/internal/observability/metrics"
	"github.com/xonelabs/xonebot/pkg/logging"
)

const defaultMinSearchResults = 5

// CostRecorder lets the orchestrator report provisioned-number charges to
// the (external) tenant persistence layer.
type CostRecorder interface {
	AddMonthlyCost(ctx context.Context, tenantID string, amount float64) error
}

// Resolution is the outcome of inbound identity resolution. The zero value
// means unresolved; resolution ambiguity is a normal value, not an error.
type Resolution struct {
	TenantID string
	NumberID string
	// Via records which rule matched: "extension" or "number".
	Via string
}

// Resolved reports whether a tenant was identified.
func (r Resolution) Resolved() bool { return r.TenantID != "" }

// OrchestratorConfig wires the orchestrator's immutable routing data.
// Priority tables are loaded once at startup and never mutated.
type OrchestratorConfig struct {
	Providers []Provider
	// RegionalPriority maps a region code to an ordered list of provider
	// names. Unlisted regions fall back to the default global order.
	RegionalPriority map[string][]string
	// DefaultOrder is the global provider order; defaults to the order of
	// Providers.
	DefaultOrder []string
	// UniversalNumber is the shared endpoint; calls to it resolve to no
	// tenant here (selection is deferred to the routing engine).
	UniversalNumber string
	// ForwardingReceivers maps a region code to the number existing-number
	// setups forward into.
	ForwardingReceivers map[string]string
	Callbacks           CallbackTargets
	MinSearchResults    int
	Store               NumberStore
	Costs               CostRecorder
	Logger              *logging.Logger
	Metrics             *metrics.GatewayMetrics
}

// Orchestrator picks a provider order per region, aggregates searches,
// persists provisioned-number records, and resolves inbound traffic to a
// tenant.
type Orchestrator struct {
	providers map[string]Provider
	order     []string
	regional  map[string][]string
	universal string
	receivers map[string]string
	callbacks CallbackTargets
	minHits   int
	store     NumberStore
	costs     CostRecorder
	logger    *logging.Logger
	metrics   *metrics.GatewayMetrics
}

// NewOrchestrator creates an orchestrator from immutable configuration.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("carrier: at least one provider is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("carrier: number store is required")
	}
	providers := make(map[string]Provider, len(cfg.Providers))
	order := make([]string, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Name()] = p
		order = append(order, p.Name())
	}
	if len(cfg.DefaultOrder) > 0 {
		order = cfg.DefaultOrder
	}
	minHits := cfg.MinSearchResults
	if minHits <= 0 {
		minHits = defaultMinSearchResults
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		providers: providers,
		order:     order,
		regional:  cfg.RegionalPriority,
		universal: cfg.UniversalNumber,
		receivers: cfg.ForwardingReceivers,
		callbacks: cfg.Callbacks,
		minHits:   minHits,
		store:     cfg.Store,
		costs:     cfg.Costs,
		logger:    logger,
		metrics:   cfg.Metrics,
	}, nil
}

// SearchNumbers iterates providers in regional priority order, promoting the
// preferred provider to the front when given, and aggregates results. A
// provider failure is logged and skipped. The search stops early once the
// minimum result count is reached to bound latency.
func (o *Orchestrator) SearchNumbers(ctx context.Context, countryCode, preferredProvider string) []NumberOffer {
	order := o.providerOrder(countryCode, preferredProvider)

	var offers []NumberOffer
	for _, name := range order {
		provider, ok := o.providers[name]
		if !ok {
			continue
		}
		found, err := provider.SearchNumbers(ctx, countryCode, "")
		if err != nil {
			o.metrics.ObserveCarrierOp(name, "search", "error")
			o.logger.Warn("provider search failed", "provider", name, "country_code", countryCode, "error", err)
			continue
		}
		o.metrics.ObserveCarrierOp(name, "search", "ok")
		offers = append(offers, found...)
		if len(offers) >= o.minHits {
			break
		}
	}
	return offers
}

// ProvisionNumber delegates to the offer's originating provider. On success
// it records an active ProvisionedNumber and reports the monthly cost; on
// failure it returns a structured error without mutating tenant state.
func (o *Orchestrator) ProvisionNumber(ctx context.Context, tenantID string, offer NumberOffer) (*ProvisionedNumber, error) {
	provider, ok := o.providers[offer.Provider]
	if !ok {
		return nil, fmt.Errorf("carrier: unknown provider %q", offer.Provider)
	}

	result := provider.Provision(ctx, offer.Number, o.callbacks)
	if !result.OK {
		o.metrics.ObserveCarrierOp(offer.Provider, "provision", "error")
		return nil, fmt.Errorf("carrier: provision %s via %s failed: %s", offer.Number, offer.Provider, result.Error)
	}
	o.metrics.ObserveCarrierOp(offer.Provider, "provision", "ok")

	rec := &ProvisionedNumber{
		TenantID:     tenantID,
		Number:       offer.Number,
		CountryCode:  offer.CountryCode,
		Provider:     offer.Provider,
		Capabilities: offer.Capabilities,
		Status:       StatusActive,
		ProviderRef:  result.ProviderRef,
		MonthlyCost:  offer.MonthlyCost,
	}
	now := nowFunc()
	rec.ActivatedAt = &now
	if err := o.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("carrier: persist provisioned number: %w", err)
	}

	if o.costs != nil {
		if err := o.costs.AddMonthlyCost(ctx, tenantID, offer.MonthlyCost); err != nil {
			o.logger.Warn("cost update failed after provisioning", "tenant_id", tenantID, "number", offer.Number, "error", err)
		}
	}
	o.logger.Info("number provisioned", "tenant_id", tenantID, "number", offer.Number, "provider", offer.Provider)
	return rec, nil
}

// ReleaseNumber tears a number down at the carrier and marks the record
// released.
func (o *Orchestrator) ReleaseNumber(ctx context.Context, numberID string) error {
	rec, err := o.store.ByID(ctx, numberID)
	if err != nil {
		return err
	}
	if provider, ok := o.providers[rec.Provider]; ok {
		if !provider.Release(ctx, rec.Number) {
			o.metrics.ObserveCarrierOp(rec.Provider, "release", "error")
			return fmt.Errorf("carrier: release %s via %s failed", rec.Number, rec.Provider)
		}
		o.metrics.ObserveCarrierOp(rec.Provider, "release", "ok")
	}
	rec.Status = StatusReleased
	rec.ExtensionCode = ""
	return o.store.Update(ctx, rec)
}

// ResolveInboundTenant resolves a call/message to a tenant. Resolution
// order: (1) extension-code match among active numbers, (2) exact toNumber
// match among active non-universal numbers, (3) anything else (including
// the universal number) is unresolved. Extension matching runs first
// because the raw "to" number of a forwarded call is the forwarding target,
// not the tenant's own line.
func (o *Orchestrator) ResolveInboundTenant(ctx context.Context, toNumber, fromNumber, extension string) Resolution {
	if ext := strings.TrimSpace(extension); ext != "" {
		if rec, err := o.store.ActiveByExtension(ctx, ext); err == nil {
			return Resolution{TenantID: rec.TenantID, NumberID: rec.ID, Via: "extension"}
		} else if err != ErrNumberNotFound {
			o.logger.Warn("extension lookup failed", "extension", ext, "error", err)
		}
	}

	if rec, err := o.store.ActiveByNumber(ctx, toNumber); err == nil {
		return Resolution{TenantID: rec.TenantID, NumberID: rec.ID, Via: "number"}
	} else if err != ErrNumberNotFound {
		o.logger.Warn("number lookup failed", "to_number", toNumber, "error", err)
	}

	// The universal number is deliberately unresolved here; tenant selection
	// is the routing engine's job.
	return Resolution{}
}

// BridgeCall bridges an active call leg to a staff number. The result is
// reported verbatim; a failed bridge is not retried.
func (o *Orchestrator) BridgeCall(ctx context.Context, toStaff, from string) CallResult {
	instructions := strings.TrimRight(o.callbacks.VoiceURL, "/") + "/bridge"
	for _, name := range o.order {
		provider, ok := o.providers[name]
		if !ok {
			continue
		}
		result := provider.PlaceCall(ctx, toStaff, from, instructions)
		status := "ok"
		if !result.OK {
			status = "error"
		}
		o.metrics.ObserveCarrierOp(name, "bridge", status)
		return result
	}
	return CallResult{Error: "no provider available"}
}

// providerOrder resolves the priority list for a region, promoting the
// preferred provider to the front when present.
func (o *Orchestrator) providerOrder(countryCode, preferred string) []string {
	base := o.order
	if regional, ok := o.regional[countryCode]; ok && len(regional) > 0 {
		base = regional
	}
	if preferred == "" {
		return base
	}
	if _, ok := o.providers[preferred]; !ok {
		return base
	}
	order := []string{preferred}
	for _, name := range base {
		if name != preferred {
			order = append(order, name)
		}
	}
	return order
}
