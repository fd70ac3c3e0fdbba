// Package carrier abstracts telephony providers behind a uniform capability
// set and resolves inbound calls/messages to the owning tenant.
package carrier

import "context"

// Capability is a channel a number supports.
type Capability string

const (
	CapabilityVoice    Capability = "voice"
	CapabilitySMS      Capability = "sms"
	CapabilityWhatsApp Capability = "whatsapp"
)

// NumberOffer is an available number returned by a provider search.
type NumberOffer struct {
	Number       string       `json:"number"`
	CountryCode  string       `json:"country_code"`
	Region       string       `json:"region,omitempty"`
	Provider     string       `json:"provider"`
	Capabilities []Capability `json:"capabilities"`
	MonthlyCost  float64      `json:"monthly_cost"`
	SetupCost    float64      `json:"setup_cost"`
}

// CallbackTargets are the webhook URLs a provisioned number reports to.
type CallbackTargets struct {
	VoiceURL   string
	MessageURL string
}

// ProvisionResult is the uniform outcome of a provision attempt. Adapters
// never return provider-specific errors across this boundary.
type ProvisionResult struct {
	OK          bool   `json:"ok"`
	ProviderRef string `json:"provider_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CallResult is the uniform outcome of an outbound call attempt.
type CallResult struct {
	OK      bool   `json:"ok"`
	CallRef string `json:"call_ref,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Provider is the uniform contract implemented once per real carrier.
// Underlying network failures are converted into zero-value results or an
// error from SearchNumbers; callers decide on retry or fallback.
type Provider interface {
	Name() string
	SearchNumbers(ctx context.Context, countryCode, region string) ([]NumberOffer, error)
	Provision(ctx context.Context, number string, targets CallbackTargets) ProvisionResult
	Release(ctx context.Context, number string) bool
	ConfigureForwarding(ctx context.Context, from, to, extension string) bool
	SendText(ctx context.Context, to, from, body string) bool
	PlaceCall(ctx context.Context, to, from, instructionsURL string) CallResult
}
