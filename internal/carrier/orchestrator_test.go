package carrier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xonelabs/xonebot/internal/observability/metrics"
	"github.com/xonelabs/xonebot/pkg/logging"
)

// scriptedProvider returns canned offers or failures per call.
type scriptedProvider struct {
	name      string
	offers    []NumberOffer
	searchErr error
	provision ProvisionResult
	call      CallResult
	calls     int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) SearchNumbers(ctx context.Context, countryCode, region string) ([]NumberOffer, error) {
	p.calls++
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.offers, nil
}

func (p *scriptedProvider) Provision(ctx context.Context, number string, targets CallbackTargets) ProvisionResult {
	return p.provision
}

func (p *scriptedProvider) Release(ctx context.Context, number string) bool { return true }

func (p *scriptedProvider) ConfigureForwarding(ctx context.Context, from, to, extension string) bool {
	return true
}

func (p *scriptedProvider) SendText(ctx context.Context, to, from, body string) bool { return true }

func (p *scriptedProvider) PlaceCall(ctx context.Context, to, from, instructionsURL string) CallResult {
	p.calls++
	return p.call
}

type recordingCosts struct {
	tenantID string
	amount   float64
	calls    int
}

func (c *recordingCosts) AddMonthlyCost(ctx context.Context, tenantID string, amount float64) error {
	c.tenantID = tenantID
	c.amount = amount
	c.calls++
	return nil
}

func testOrchestrator(t *testing.T, cfg OrchestratorConfig) *Orchestrator {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = NewMemoryNumberStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewGatewayMetrics(prometheus.NewRegistry())
	}
	orch, err := NewOrchestrator(cfg)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

func offersFor(provider string, n int) []NumberOffer {
	offers := make([]NumberOffer, 0, n)
	for i := 0; i < n; i++ {
		offers = append(offers, NumberOffer{
			Number:      fmt.Sprintf("+3712000%03d", i),
			CountryCode: "+371",
			Provider:    provider,
			MonthlyCost: 12,
		})
	}
	return offers
}

func TestSearchSkipsFailingProvider(t *testing.T) {
	broken := &scriptedProvider{name: "vonage", searchErr: errors.New("network down")}
	healthy := &scriptedProvider{name: "twilio", offers: offersFor("twilio", 2)}

	orch := testOrchestrator(t, OrchestratorConfig{
		Providers:        []Provider{broken, healthy},
		RegionalPriority: map[string][]string{"+371": {"vonage", "twilio"}},
	})

	offers := orch.SearchNumbers(context.Background(), "+371", "")
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers from the healthy provider, got %d", len(offers))
	}
	if broken.calls != 1 || healthy.calls != 1 {
		t.Errorf("expected both providers tried once, got %d/%d", broken.calls, healthy.calls)
	}
}

func TestSearchStopsEarlyOnceSatisfied(t *testing.T) {
	first := &scriptedProvider{name: "vonage", offers: offersFor("vonage", 5)}
	second := &scriptedProvider{name: "twilio", offers: offersFor("twilio", 5)}

	orch := testOrchestrator(t, OrchestratorConfig{
		Providers:        []Provider{first, second},
		RegionalPriority: map[string][]string{"+371": {"vonage", "twilio"}},
	})

	offers := orch.SearchNumbers(context.Background(), "+371", "")
	if len(offers) != 5 {
		t.Fatalf("expected 5 offers, got %d", len(offers))
	}
	if second.calls != 0 {
		t.Errorf("expected second provider skipped after early stop, got %d calls", second.calls)
	}
}

func TestSearchPromotesPreferredProvider(t *testing.T) {
	vonage := &scriptedProvider{name: "vonage", offers: offersFor("vonage", 5)}
	twilio := &scriptedProvider{name: "twilio", offers: offersFor("twilio", 5)}

	orch := testOrchestrator(t, OrchestratorConfig{
		Providers:        []Provider{vonage, twilio},
		RegionalPriority: map[string][]string{"+371": {"vonage", "twilio"}},
	})

	offers := orch.SearchNumbers(context.Background(), "+371", "twilio")
	if len(offers) == 0 || offers[0].Provider != "twilio" {
		t.Fatalf("expected preferred provider first, got %+v", offers)
	}
	if vonage.calls != 0 {
		t.Errorf("expected vonage skipped after preferred satisfied demand, got %d calls", vonage.calls)
	}
}

func TestProvisionFailureLeavesNoRecord(t *testing.T) {
	provider := &scriptedProvider{name: "twilio", provision: ProvisionResult{Error: "rejected"}}
	store := NewMemoryNumberStore()
	costs := &recordingCosts{}

	orch := testOrchestrator(t, OrchestratorConfig{
		Providers: []Provider{provider},
		Store:     store,
		Costs:     costs,
	})

	_, err := orch.ProvisionNumber(context.Background(), "cafe-1", NumberOffer{
		Number: "+37120001111", Provider: "twilio", MonthlyCost: 15,
	})
	if err == nil {
		t.Fatal("expected provisioning error")
	}
	if _, lookupErr := store.ActiveByNumber(context.Background(), "+37120001111"); lookupErr != ErrNumberNotFound {
		t.Error("expected no record after failed provision")
	}
	if costs.calls != 0 {
		t.Error("expected no cost mutation after failed provision")
	}
}

func TestProvisionSuccessCreatesActiveRecordAndRecordsCost(t *testing.T) {
	provider := &scriptedProvider{name: "twilio", provision: ProvisionResult{OK: true, ProviderRef: "PN123"}}
	store := NewMemoryNumberStore()
	costs := &recordingCosts{}

	orch := testOrchestrator(t, OrchestratorConfig{
		Providers: []Provider{provider},
		Store:     store,
		Costs:     costs,
	})

	rec, err := orch.ProvisionNumber(context.Background(), "cafe-1", NumberOffer{
		Number: "+37120001111", CountryCode: "+371", Provider: "twilio", MonthlyCost: 15,
	})
	if err != nil {
		t.Fatalf("ProvisionNumber: %v", err)
	}
	if rec.Status != StatusActive || rec.ProviderRef != "PN123" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if costs.tenantID != "cafe-1" || costs.amount != 15 {
		t.Errorf("expected cost recorded, got %+v", costs)
	}

	found, err := store.ActiveByNumber(context.Background(), "+37120001111")
	if err != nil || found.TenantID != "cafe-1" {
		t.Fatalf("expected active record for cafe-1, got %v (%v)", found, err)
	}
}

func TestResolveUniversalNumberStaysUnresolved(t *testing.T) {
	orch := testOrchestrator(t, OrchestratorConfig{
		Providers:       []Provider{NewMockProvider("mock", 1)},
		UniversalNumber: "+18005550100",
	})

	res := orch.ResolveInboundTenant(context.Background(), "+18005550100", "+37129999999", "")
	if res.Resolved() {
		t.Fatalf("expected universal number unresolved, got %+v", res)
	}
}

func TestResolveDirectNumberMatch(t *testing.T) {
	store := NewMemoryNumberStore()
	now := nowFunc()
	if err := store.Create(context.Background(), &ProvisionedNumber{
		TenantID: "cafe-7", Number: "+37120007777", Status: StatusActive, ActivatedAt: &now,
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	orch := testOrchestrator(t, OrchestratorConfig{
		Providers: []Provider{NewMockProvider("mock", 1)},
		Store:     store,
	})

	res := orch.ResolveInboundTenant(context.Background(), "+37120007777", "+37129999999", "")
	if res.TenantID != "cafe-7" || res.Via != "number" {
		t.Fatalf("expected direct match for cafe-7, got %+v", res)
	}
}

func TestResolveExtensionTakesPrecedenceOverRawNumber(t *testing.T) {
	store := NewMemoryNumberStore()
	ctx := context.Background()

	// Forwarded setup: the café's own line forwards into a shared receiver,
	// so the raw "to" number belongs to a different tenant's record.
	if err := store.Create(ctx, &ProvisionedNumber{
		TenantID: "cafe-receiver", Number: "+37255550000", Status: StatusActive,
	}); err != nil {
		t.Fatalf("seed receiver: %v", err)
	}
	if err := store.Create(ctx, &ProvisionedNumber{
		TenantID: "cafe-forwarded", Number: "+37126660000", Status: StatusActive, ExtensionCode: "4821",
	}); err != nil {
		t.Fatalf("seed forwarded: %v", err)
	}

	orch := testOrchestrator(t, OrchestratorConfig{
		Providers: []Provider{NewMockProvider("mock", 1)},
		Store:     store,
	})

	res := orch.ResolveInboundTenant(ctx, "+37255550000", "+37129999999", "4821")
	if res.TenantID != "cafe-forwarded" || res.Via != "extension" {
		t.Fatalf("expected extension match to win, got %+v", res)
	}
}

func TestExistingNumberSetupAndVerification(t *testing.T) {
	store := NewMemoryNumberStore()
	orch := testOrchestrator(t, OrchestratorConfig{
		Providers:           []Provider{NewMockProvider("mock", 1)},
		Store:               store,
		UniversalNumber:     "+18005550100",
		ForwardingReceivers: map[string]string{"+371": "+37255550000"},
	})
	ctx := context.Background()

	setup, err := orch.SetupExistingNumber(ctx, "cafe-3", "+37126661234")
	if err != nil {
		t.Fatalf("SetupExistingNumber: %v", err)
	}
	if len(setup.ExtensionCode) != 4 {
		t.Errorf("expected 4-digit extension code, got %q", setup.ExtensionCode)
	}
	if setup.ForwardingNumber != "+37255550000" {
		t.Errorf("expected regional receiver, got %s", setup.ForwardingNumber)
	}

	rec, err := store.ByID(ctx, setup.NumberID)
	if err != nil || rec.Status != StatusProvisioning {
		t.Fatalf("expected provisioning record, got %v (%v)", rec, err)
	}

	// Wrong code: no state change.
	if orch.VerifyExistingNumber(ctx, "cafe-3", setup.NumberID, "0000") && setup.ExtensionCode != "0000" {
		t.Fatal("expected wrong code to be rejected")
	}
	rec, _ = store.ByID(ctx, setup.NumberID)
	if rec.Status != StatusProvisioning && setup.ExtensionCode != "0000" {
		t.Fatal("expected record to stay in provisioning after failed verification")
	}

	// Correct code: transitions to active and becomes resolvable by extension.
	if !orch.VerifyExistingNumber(ctx, "cafe-3", setup.NumberID, setup.ExtensionCode) {
		t.Fatal("expected verification to succeed")
	}
	rec, _ = store.ByID(ctx, setup.NumberID)
	if rec.Status != StatusActive || rec.ActivatedAt == nil {
		t.Fatalf("expected active record, got %+v", rec)
	}

	res := orch.ResolveInboundTenant(ctx, "+37255550000", "", setup.ExtensionCode)
	if res.TenantID != "cafe-3" {
		t.Fatalf("expected verified number to resolve by extension, got %+v", res)
	}
}

func TestBridgeCallReportsVerbatim(t *testing.T) {
	failing := &scriptedProvider{name: "twilio", call: CallResult{Error: "busy"}}
	orch := testOrchestrator(t, OrchestratorConfig{Providers: []Provider{failing}})

	result := orch.BridgeCall(context.Background(), "+37129990000", "+18005550100")
	if result.OK || result.Error != "busy" {
		t.Fatalf("expected verbatim failure, got %+v", result)
	}
	if failing.calls != 1 {
		t.Errorf("expected exactly one bridge attempt, got %d", failing.calls)
	}
}

func TestMemoryStoreEnforcesActiveUniqueness(t *testing.T) {
	store := NewMemoryNumberStore()
	ctx := context.Background()

	if err := store.Create(ctx, &ProvisionedNumber{
		TenantID: "a", Number: "+37120001111", Status: StatusActive, ExtensionCode: "1234",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := store.Create(ctx, &ProvisionedNumber{
		TenantID: "b", Number: "+37120001111", Status: StatusActive,
	})
	if err != ErrNumberConflict {
		t.Errorf("expected number conflict, got %v", err)
	}

	err = store.Create(ctx, &ProvisionedNumber{
		TenantID: "b", Number: "+37120002222", Status: StatusActive, ExtensionCode: "1234",
	})
	if err != ErrNumberConflict {
		t.Errorf("expected extension conflict, got %v", err)
	}

	// Released records do not block reuse.
	if err := store.Create(ctx, &ProvisionedNumber{
		TenantID: "c", Number: "+37120003333", Status: StatusReleased, ExtensionCode: "1234",
	}); err != nil {
		t.Errorf("expected released record to be allowed, got %v", err)
	}
}
