package carrier

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

var nowFunc = time.Now

// ExistingNumberSetup is returned by SetupExistingNumber: the extension code
// issued to the café, the number its provider should forward calls into, and
// the dial-in steps to hand to the operator.
type ExistingNumberSetup struct {
	NumberID         string   `json:"number_id"`
	ExtensionCode    string   `json:"extension_code"`
	ForwardingNumber string   `json:"forwarding_number"`
	Steps            []string `json:"steps"`
}

// SetupExistingNumber starts "bring your own number" onboarding. It issues a
// short numeric extension code, picks a region-appropriate forwarding
// receiver, and records the number in the provisioning state. The record
// stays inactive until the caller verifies the code during a live test call.
func (o *Orchestrator) SetupExistingNumber(ctx context.Context, tenantID, existingNumber string) (*ExistingNumberSetup, error) {
	existingNumber = strings.TrimSpace(existingNumber)
	if existingNumber == "" {
		return nil, fmt.Errorf("carrier: existing number is required")
	}

	code, err := o.generateExtensionCode(ctx)
	if err != nil {
		return nil, err
	}
	region := regionOf(existingNumber)
	forwarding := o.receivers[region]
	if forwarding == "" {
		forwarding = o.universal
	}

	rec := &ProvisionedNumber{
		TenantID:      tenantID,
		Number:        existingNumber,
		CountryCode:   region,
		Provider:      "existing",
		Capabilities:  []Capability{CapabilityVoice},
		Status:        StatusProvisioning,
		ExtensionCode: code,
		ForwardingTo:  forwarding,
	}
	if err := o.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("carrier: persist existing number: %w", err)
	}

	o.logger.Info("existing number setup started", "tenant_id", tenantID, "number", existingNumber, "extension", code)
	return &ExistingNumberSetup{
		NumberID:         rec.ID,
		ExtensionCode:    code,
		ForwardingNumber: forwarding,
		Steps: []string{
			"Contact your phone provider",
			fmt.Sprintf("Request call forwarding to: %s", forwarding),
			fmt.Sprintf("Extension/reference code: %s", code),
			fmt.Sprintf("Place a test call to %s and enter the code when prompted", existingNumber),
		},
	}, nil
}

// VerifyExistingNumber checks the code the caller observed during the live
// test call. Only an exact match transitions the record to active; any
// other outcome leaves state untouched. This guards against a tenant
// claiming a number they do not control.
func (o *Orchestrator) VerifyExistingNumber(ctx context.Context, tenantID, numberID, code string) bool {
	rec, err := o.store.ByID(ctx, numberID)
	if err != nil {
		return false
	}
	if rec.TenantID != tenantID || rec.Status != StatusProvisioning {
		return false
	}
	if strings.TrimSpace(code) != rec.ExtensionCode {
		return false
	}

	now := nowFunc()
	rec.Status = StatusActive
	rec.ActivatedAt = &now
	if err := o.store.Update(ctx, rec); err != nil {
		o.logger.Warn("existing number activation failed", "number_id", numberID, "error", err)
		return false
	}
	o.logger.Info("existing number verified", "tenant_id", tenantID, "number", rec.Number)
	return true
}

// generateExtensionCode issues a 4-digit code unused by any active number.
func (o *Orchestrator) generateExtensionCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 25; attempt++ {
		code := fmt.Sprintf("%04d", rand.Intn(10000))
		inUse, err := o.store.ExtensionInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("carrier: extension uniqueness check: %w", err)
		}
		if !inUse {
			return code, nil
		}
	}
	return "", fmt.Errorf("carrier: could not allocate a unique extension code")
}

func regionOf(number string) string {
	for prefix := range countryForPrefix {
		if prefix != "+1" && strings.HasPrefix(number, prefix) {
			return prefix
		}
	}
	if strings.HasPrefix(number, "+1") {
		return "+1"
	}
	return "+1"
}
