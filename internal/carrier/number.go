package carrier

import (
	"context"
	"errors"
	"time"
)

// NumberStatus is the lifecycle state of a provisioned number.
type NumberStatus string

const (
	StatusProvisioning NumberStatus = "provisioning"
	StatusActive       NumberStatus = "active"
	StatusSuspended    NumberStatus = "suspended"
	StatusReleased     NumberStatus = "released"
)

// ProvisionedNumber is a number owned by exactly one tenant, or flagged
// universal (shared, not owned). A non-universal number maps to at most one
// active tenant at any time; an extension code is unique among active
// numbers.
type ProvisionedNumber struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenant_id,omitempty"`
	Number        string       `json:"number"`
	CountryCode   string       `json:"country_code"`
	Provider      string       `json:"provider"`
	Capabilities  []Capability `json:"capabilities"`
	Status        NumberStatus `json:"status"`
	ExtensionCode string       `json:"extension_code,omitempty"`
	ForwardingTo  string       `json:"forwarding_to,omitempty"`
	Universal     bool         `json:"universal"`
	ProviderRef   string       `json:"provider_ref,omitempty"`
	MonthlyCost   float64      `json:"monthly_cost"`
	CreatedAt     time.Time    `json:"created_at"`
	ActivatedAt   *time.Time   `json:"activated_at,omitempty"`
}

// ErrNumberNotFound is returned by stores for point lookups that miss.
var ErrNumberNotFound = errors.New("carrier: number not found")

// ErrNumberConflict is returned when activating a record would violate the
// one-active-tenant-per-number or unique-extension invariant.
var ErrNumberConflict = errors.New("carrier: active number conflict")

// NumberStore persists ProvisionedNumber records keyed for point lookup.
type NumberStore interface {
	Create(ctx context.Context, rec *ProvisionedNumber) error
	Update(ctx context.Context, rec *ProvisionedNumber) error
	ByID(ctx context.Context, id string) (*ProvisionedNumber, error)
	// ActiveByNumber returns the single active non-universal record for a
	// number, or ErrNumberNotFound.
	ActiveByNumber(ctx context.Context, number string) (*ProvisionedNumber, error)
	// ActiveByExtension returns the active record carrying an extension
	// code, or ErrNumberNotFound.
	ActiveByExtension(ctx context.Context, code string) (*ProvisionedNumber, error)
	// ExtensionInUse reports whether any active record holds the code.
	ExtensionInUse(ctx context.Context, code string) (bool, error)
}
