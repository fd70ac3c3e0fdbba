package carrier

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// MockProvider implements the Provider contract without touching a carrier
// network. It backs simulation mode and keeps production and test paths
// structurally identical.
type MockProvider struct {
	name string

	mu       sync.Mutex
	rng      *rand.Rand
	owned    map[string]bool
	failNext bool
}

// NewMockProvider creates a simulated provider. The seed makes generated
// numbers reproducible in tests.
func NewMockProvider(name string, seed int64) *MockProvider {
	if name == "" {
		name = "mock"
	}
	return &MockProvider{
		name:  name,
		rng:   rand.New(rand.NewSource(seed)),
		owned: make(map[string]bool),
	}
}

// FailNext makes the next operation report failure. Used to exercise
// degradation paths.
func (p *MockProvider) FailNext() {
	p.mu.Lock()
	p.failNext = true
	p.mu.Unlock()
}

func (p *MockProvider) takeFailure() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return true
	}
	return false
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) SearchNumbers(ctx context.Context, countryCode, region string) ([]NumberOffer, error) {
	if p.takeFailure() {
		return nil, fmt.Errorf("carrier: %s simulated search outage", p.name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	offers := make([]NumberOffer, 0, 3)
	for i := 0; i < 3; i++ {
		offers = append(offers, NumberOffer{
			Number:       fmt.Sprintf("%s555%04d", countryCode, p.rng.Intn(10000)),
			CountryCode:  countryCode,
			Region:       region,
			Provider:     p.name,
			Capabilities: []Capability{CapabilityVoice, CapabilitySMS, CapabilityWhatsApp},
			MonthlyCost:  5.00,
		})
	}
	return offers, nil
}

func (p *MockProvider) Provision(ctx context.Context, number string, targets CallbackTargets) ProvisionResult {
	if p.takeFailure() {
		return ProvisionResult{Error: "simulated provision rejection"}
	}
	p.mu.Lock()
	p.owned[number] = true
	ref := fmt.Sprintf("%s-%06d", p.name, p.rng.Intn(1000000))
	p.mu.Unlock()
	return ProvisionResult{OK: true, ProviderRef: ref}
}

func (p *MockProvider) Release(ctx context.Context, number string) bool {
	if p.takeFailure() {
		return false
	}
	p.mu.Lock()
	delete(p.owned, number)
	p.mu.Unlock()
	return true
}

func (p *MockProvider) ConfigureForwarding(ctx context.Context, from, to, extension string) bool {
	return !p.takeFailure()
}

func (p *MockProvider) SendText(ctx context.Context, to, from, body string) bool {
	return !p.takeFailure()
}

func (p *MockProvider) PlaceCall(ctx context.Context, to, from, instructionsURL string) CallResult {
	if p.takeFailure() {
		return CallResult{Error: "simulated call failure"}
	}
	p.mu.Lock()
	ref := fmt.Sprintf("call-%s-%06d", p.name, p.rng.Intn(1000000))
	p.mu.Unlock()
	return CallResult{OK: true, CallRef: ref}
}
