package tenancy

import "context"

// RoutingMode controls which endpoints can reach a tenant.
type RoutingMode string

const (
	// RoutingUniversalOnly exposes the tenant through the shared number only.
	RoutingUniversalOnly RoutingMode = "universal_only"
	// RoutingCustomOnly exposes the tenant through its own numbers only.
	RoutingCustomOnly RoutingMode = "custom_only"
	// RoutingBoth exposes the tenant through both.
	RoutingBoth RoutingMode = "both"
)

// Features are per-tenant flags checked by the routing engine.
type Features struct {
	HumanTransfer   bool `json:"human_transfer"`
	WhatsAppEnabled bool `json:"whatsapp_enabled"`
}

// Tenant is a café/business account. The unit of data isolation and billing.
type Tenant struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Active      bool        `json:"active"`
	RoutingMode RoutingMode `json:"routing_mode"`
	StaffNumber string      `json:"staff_number,omitempty"`
	Features    Features    `json:"features"`
	// MonthlyNumberCost accumulates provisioned-number charges.
	MonthlyNumberCost float64 `json:"monthly_number_cost"`
}

// UniversalEligible reports whether the tenant can be reached through the
// shared number.
func (t Tenant) UniversalEligible() bool {
	return t.Active && (t.RoutingMode == RoutingUniversalOnly || t.RoutingMode == RoutingBoth)
}

// CatalogItem is a bounded view of a tenant's menu used for prompt context.
type CatalogItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       string   `json:"price"`
	DietaryTags []string `json:"dietary_tags,omitempty"`
	Allergens   []string `json:"allergens,omitempty"`
}

// Directory is the tenant read surface supplied by the persistence layer.
type Directory interface {
	TenantByID(ctx context.Context, id string) (*Tenant, error)
	UniversalTenants(ctx context.Context) ([]Tenant, error)
}

// Catalog is the bounded menu read surface supplied by the persistence layer.
type Catalog interface {
	Items(ctx context.Context, tenantID string, limit int) ([]CatalogItem, error)
}
