// Package routing is the top-level conversation orchestrator. It binds
// inbound events to a tenant, keeps the per-session state machine, and
// delegates reply generation to the backend fallback router.
package routing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xonelabs/xonebot/internal/backend"
	"github.com/xonelabs/xonebot/internal/carrier"
	"github.com/xonelabs/xonebot/internal/memory"
	"github.com/xonelabs/xonebot/internal/tenancy"
	"github.com/xonelabs/xonebot/pkg/logging"
)

const (
	defaultCatalogPreview = 10
	defaultHistoryTurns   = 5
)

// Memory is the slice of the conversation store the engine needs.
type Memory interface {
	Get(ctx context.Context, sessionID string) (memory.Context, error)
	Append(ctx context.Context, sessionID string, role memory.Role, text string) error
	UpdateContext(ctx context.Context, sessionID string, updates map[string]any) (memory.Context, error)
	Summarize(ctx context.Context, sessionID string, n int) (string, error)
}

// Resolver is the slice of the carrier orchestrator the engine needs:
// inbound identity and call bridging.
type Resolver interface {
	ResolveInboundTenant(ctx context.Context, toNumber, fromNumber, extension string) carrier.Resolution
	BridgeCall(ctx context.Context, toStaff, from string) carrier.CallResult
}

// Responder generates a reply for a classified message.
type Responder interface {
	Route(ctx context.Context, message string, req backend.Request) *backend.Result
}

// EngineConfig carries the engine's immutable settings.
type EngineConfig struct {
	UniversalNumber string
	// CatalogPreview bounds how many menu items go into the prompt.
	CatalogPreview int
	// HistoryTurns bounds how many recent turns go into the prompt.
	HistoryTurns int
}

// Engine drives the two-state session machine: AwaitingTenantSelection
// until a tenant is bound, InTenantConversation after. Binding is
// immutable for the life of the session.
type Engine struct {
	memory    Memory
	directory tenancy.Directory
	catalog   tenancy.Catalog
	responder Responder
	resolver  Resolver
	cfg       EngineConfig
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewEngine wires the engine. Resolver may be nil for channels that never
// carry telephony identity (pure web chat deployments).
func NewEngine(mem Memory, dir tenancy.Directory, cat tenancy.Catalog, responder Responder, resolver Resolver, cfg EngineConfig, logger *logging.Logger) *Engine {
	if mem == nil {
		panic("routing: memory store cannot be nil")
	}
	if dir == nil {
		panic("routing: tenant directory cannot be nil")
	}
	if responder == nil {
		panic("routing: responder cannot be nil")
	}
	if cfg.CatalogPreview <= 0 {
		cfg.CatalogPreview = defaultCatalogPreview
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		memory:    mem,
		directory: dir,
		catalog:   cat,
		responder: responder,
		resolver:  resolver,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("xonebot.internal.routing"),
	}
}

// Handle processes one inbound event end to end: resolve identity, update
// memory, generate a reply. It returns an error only for infrastructure
// failures (memory store unreachable); every conversational condition maps
// to a Reply.
func (e *Engine) Handle(ctx context.Context, event InboundEvent) (*Reply, error) {
	ctx, span := e.tracer.Start(ctx, "routing.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("xonebot.session_id", event.SessionID),
		attribute.String("xonebot.channel", string(event.Channel)),
	)

	if strings.TrimSpace(event.SessionID) == "" {
		return nil, fmt.Errorf("routing: session id is required")
	}

	state, err := e.memory.Get(ctx, event.SessionID)
	if err != nil {
		return nil, err
	}

	// A dedicated-number call or forwarded extension binds the tenant
	// before any conversational selection.
	if state.TenantID == "" && e.resolver != nil && (event.CalledNumber != "" || event.Extension != "") {
		if event.CalledNumber != e.cfg.UniversalNumber || event.Extension != "" {
			res := e.resolver.ResolveInboundTenant(ctx, event.CalledNumber, event.CallerNumber, event.Extension)
			if res.Resolved() {
				state, err = e.bindTenant(ctx, event.SessionID, res.TenantID)
				if err != nil {
					return nil, err
				}
				e.logger.Info("tenant bound from inbound identity",
					"session_id", event.SessionID, "tenant_id", res.TenantID, "via", res.Via,
				)
			}
		}
	}

	if err := e.memory.Append(ctx, event.SessionID, memory.RoleUser, event.Text); err != nil {
		return nil, err
	}

	var reply *Reply
	if state.TenantID == "" {
		reply, err = e.selectTenant(ctx, event, state)
	} else {
		reply, err = e.converse(ctx, event, state)
	}
	if err != nil {
		return nil, err
	}

	if err := e.memory.Append(ctx, event.SessionID, memory.RoleAssistant, reply.Message); err != nil {
		return nil, err
	}
	return reply, nil
}

// selectTenant runs the AwaitingTenantSelection state: match the message
// against the universal-eligible tenant names, or prompt for a choice.
func (e *Engine) selectTenant(ctx context.Context, event InboundEvent, state memory.Context) (*Reply, error) {
	tenants, err := e.directory.UniversalTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("routing: failed to list tenants: %w", err)
	}

	// An empty registry is a user-facing condition, not an error.
	if len(tenants) == 0 {
		return &Reply{
			Message: "We're sorry, this service is unavailable right now. Please try again later.",
			State:   StateAwaitingTenantSelection,
		}, nil
	}

	text := strings.ToLower(event.Text)
	for _, tenant := range tenants {
		if !tenant.UniversalEligible() {
			continue
		}
		if strings.Contains(text, strings.ToLower(tenant.Name)) {
			state, err = e.bindTenant(ctx, event.SessionID, tenant.ID)
			if err != nil {
				return nil, err
			}
			e.logger.Info("tenant bound from selection",
				"session_id", event.SessionID, "tenant_id", tenant.ID,
			)
			return e.converse(ctx, event, state)
		}
	}

	names := make([]string, 0, len(tenants))
	for _, tenant := range tenants {
		if tenant.UniversalEligible() {
			names = append(names, tenant.Name)
		}
	}
	return &Reply{
		Message:          fmt.Sprintf("Which business would you like to reach? Available: %s.", strings.Join(names, ", ")),
		SuggestedActions: names,
		State:            StateAwaitingTenantSelection,
	}, nil
}

// converse runs the InTenantConversation state: catalog plus recent turns
// go into the prompt, the backend router generates the reply.
func (e *Engine) converse(ctx context.Context, event InboundEvent, state memory.Context) (*Reply, error) {
	tenant, err := e.directory.TenantByID(ctx, state.TenantID)
	if err != nil {
		e.logger.Warn("tenant lookup failed", "session_id", event.SessionID, "tenant_id", state.TenantID, "error", err)
		tenant = nil
	}
	// A vanished or deactivated tenant is recoverable; the session stays alive.
	if tenant == nil || !tenant.Active {
		return &Reply{
			Message:  "I'm sorry, this business is currently unavailable. Please try again later.",
			State:    StateInTenantConversation,
			TenantID: state.TenantID,
		}, nil
	}

	if event.Channel == ChannelWhatsApp && !tenant.Features.WhatsAppEnabled {
		return &Reply{
			Message:  fmt.Sprintf("%s is not available on WhatsApp. Please call or use the chat instead.", tenant.Name),
			State:    StateInTenantConversation,
			TenantID: tenant.ID,
		}, nil
	}

	if wantsHumanTransfer(event.Text) {
		return e.transfer(ctx, event, tenant), nil
	}

	prompt, err := e.buildPrompt(ctx, event, tenant)
	if err != nil {
		return nil, err
	}

	result := e.responder.Route(ctx, event.Text, backend.Request{
		Prompt:   prompt,
		Language: state.Language,
	})
	reply := &Reply{
		Message:  result.Text,
		State:    StateInTenantConversation,
		TenantID: tenant.ID,
	}
	if !result.Exhausted {
		reply.BackendUsed = result.Backend
	}
	return reply, nil
}

// transfer handles the human-transfer override. Shared-line-only tenants
// never reach the carrier layer.
func (e *Engine) transfer(ctx context.Context, event InboundEvent, tenant *tenancy.Tenant) *Reply {
	reply := &Reply{State: StateInTenantConversation, TenantID: tenant.ID}

	if tenant.RoutingMode == tenancy.RoutingUniversalOnly {
		reply.Message = fmt.Sprintf("I'm sorry, %s operates on our shared line and can't transfer you to staff directly. I'm happy to help here instead.", tenant.Name)
		return reply
	}
	if !tenant.Features.HumanTransfer || tenant.StaffNumber == "" || e.resolver == nil {
		reply.Message = "I'm sorry, a staff transfer isn't available right now. I'm happy to help here instead."
		return reply
	}

	result := e.resolver.BridgeCall(ctx, tenant.StaffNumber, event.CallerNumber)
	if result.OK {
		reply.Message = "Connecting you to a staff member now."
		return reply
	}
	// No automatic retry; the failure is reported back as-is.
	e.logger.Warn("staff bridge failed",
		"session_id", event.SessionID, "tenant_id", tenant.ID, "error", result.Error,
	)
	reply.Message = "I couldn't reach a staff member right now. Please try again in a moment."
	return reply
}

// buildPrompt assembles the generation request: tenant identity, a bounded
// menu preview, and the recent conversation. The current message is already
// the last window entry by the time this runs, so the summary carries it.
func (e *Engine) buildPrompt(ctx context.Context, event InboundEvent, tenant *tenancy.Tenant) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the friendly assistant for %s. Help the customer order and answer questions about the menu. Keep replies short and conversational.\n", tenant.Name)

	if e.catalog != nil {
		items, err := e.catalog.Items(ctx, tenant.ID, e.cfg.CatalogPreview)
		if err != nil {
			e.logger.Warn("catalog load failed", "tenant_id", tenant.ID, "error", err)
		}
		if len(items) > 0 {
			b.WriteString("\nMenu:\n")
			for _, item := range items {
				fmt.Fprintf(&b, "- %s (%s)", item.Name, item.Price)
				if len(item.Allergens) > 0 {
					fmt.Fprintf(&b, " [contains: %s]", strings.Join(item.Allergens, ", "))
				}
				b.WriteString("\n")
			}
		}
	}

	summary, err := e.memory.Summarize(ctx, event.SessionID, e.cfg.HistoryTurns)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "\nRecent conversation:\n%s\nAssistant:", summary)
	return b.String(), nil
}

// bindTenant writes the tenant id and state into durable context. Binding
// never changes once set.
func (e *Engine) bindTenant(ctx context.Context, sessionID, tenantID string) (memory.Context, error) {
	state, err := e.memory.UpdateContext(ctx, sessionID, map[string]any{
		memory.KeyTenantID: tenantID,
		memory.KeyState:    StateInTenantConversation,
	})
	if err != nil {
		return memory.Context{}, fmt.Errorf("routing: failed to bind tenant: %w", err)
	}
	return state, nil
}

var transferPhrases = []string{
	"speak to a human",
	"talk to a human",
	"speak to a person",
	"talk to a person",
	"real person",
	"human please",
	"speak to staff",
	"talk to staff",
	"transfer me",
	"speak to someone",
	"talk to someone",
	"call a human",
	"agent please",
	"speak to an agent",
}

// wantsHumanTransfer detects the transfer override with a phrase list.
// Deliberately conservative: a false negative costs one more bot turn, a
// false positive dials staff.
func wantsHumanTransfer(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range transferPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
