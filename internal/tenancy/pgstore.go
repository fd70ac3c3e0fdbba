package tenancy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PGStore reads tenants and catalog items from PostgreSQL. It implements
// both Directory and Catalog; the routing engine only ever reads.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a tenant store backed by db.
func NewPGStore(db *sql.DB) *PGStore {
	if db == nil {
		return nil
	}
	return &PGStore{db: db}
}

func (s *PGStore) TenantByID(ctx context.Context, id string) (*Tenant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, routing_mode, staff_number, features, monthly_number_cost
		FROM tenants WHERE id = $1`, id)

	tenant, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenancy: failed to load tenant: %w", err)
	}
	return tenant, nil
}

func (s *PGStore) UniversalTenants(ctx context.Context) ([]Tenant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active, routing_mode, staff_number, features, monthly_number_cost
		FROM tenants
		WHERE active AND routing_mode IN ('universal_only', 'both')
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("tenancy: failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("tenancy: failed to scan tenant: %w", err)
		}
		tenants = append(tenants, *tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenancy: failed to list tenants: %w", err)
	}
	return tenants, nil
}

func (s *PGStore) Items(ctx context.Context, tenantID string, limit int) ([]CatalogItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, price, dietary_tags, allergens
		FROM catalog_items
		WHERE tenant_id = $1
		ORDER BY position, name
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("tenancy: failed to load catalog: %w", err)
	}
	defer rows.Close()

	var items []CatalogItem
	for rows.Next() {
		var (
			item        CatalogItem
			description sql.NullString
			tags        []byte
			allergens   []byte
		)
		if err := rows.Scan(&item.Name, &description, &item.Price, &tags, &allergens); err != nil {
			return nil, fmt.Errorf("tenancy: failed to scan catalog item: %w", err)
		}
		item.Description = description.String
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &item.DietaryTags); err != nil {
				return nil, fmt.Errorf("tenancy: decode dietary tags: %w", err)
			}
		}
		if len(allergens) > 0 {
			if err := json.Unmarshal(allergens, &item.Allergens); err != nil {
				return nil, fmt.Errorf("tenancy: decode allergens: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenancy: failed to load catalog: %w", err)
	}
	return items, nil
}

// AddMonthlyCost accumulates a provisioned-number charge on the tenant.
func (s *PGStore) AddMonthlyCost(ctx context.Context, tenantID string, amount float64) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET monthly_number_cost = monthly_number_cost + $2
		WHERE id = $1`, tenantID, amount)
	if err != nil {
		return fmt.Errorf("tenancy: failed to record number cost: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*Tenant, error) {
	var (
		tenant      Tenant
		mode        string
		staffNumber sql.NullString
		features    []byte
	)
	if err := row.Scan(&tenant.ID, &tenant.Name, &tenant.Active, &mode, &staffNumber, &features, &tenant.MonthlyNumberCost); err != nil {
		return nil, err
	}
	tenant.RoutingMode = RoutingMode(mode)
	tenant.StaffNumber = staffNumber.String
	if len(features) > 0 {
		if err := json.Unmarshal(features, &tenant.Features); err != nil {
			return nil, fmt.Errorf("tenancy: decode features: %w", err)
		}
	}
	return &tenant, nil
}
