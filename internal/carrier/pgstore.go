package carrier

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PGNumberStore persists ProvisionedNumber records to PostgreSQL.
//
// The active-number invariants are backed by partial unique indexes:
//
//	CREATE UNIQUE INDEX provisioned_numbers_active_number
//	  ON provisioned_numbers (number) WHERE status = 'active' AND NOT universal;
//	CREATE UNIQUE INDEX provisioned_numbers_active_extension
//	  ON provisioned_numbers (extension_code) WHERE status = 'active' AND extension_code <> '';
type PGNumberStore struct {
	db *sql.DB
}

// NewPGNumberStore creates a number store backed by db.
func NewPGNumberStore(db *sql.DB) *PGNumberStore {
	if db == nil {
		return nil
	}
	return &PGNumberStore{db: db}
}

func (s *PGNumberStore) Create(ctx context.Context, rec *ProvisionedNumber) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("carrier: marshal capabilities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provisioned_numbers (
			id, tenant_id, number, country_code, provider, capabilities,
			status, extension_code, forwarding_to, universal, provider_ref,
			monthly_cost, created_at, activated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, nullable(rec.TenantID), rec.Number, rec.CountryCode, rec.Provider, caps,
		string(rec.Status), rec.ExtensionCode, rec.ForwardingTo, rec.Universal, rec.ProviderRef,
		rec.MonthlyCost, rec.CreatedAt, rec.ActivatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrNumberConflict
		}
		return fmt.Errorf("carrier: failed to create number record: %w", err)
	}
	return nil
}

func (s *PGNumberStore) Update(ctx context.Context, rec *ProvisionedNumber) error {
	if s == nil || s.db == nil {
		return nil
	}
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("carrier: marshal capabilities: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE provisioned_numbers SET
			tenant_id = $2, number = $3, country_code = $4, provider = $5,
			capabilities = $6, status = $7, extension_code = $8,
			forwarding_to = $9, universal = $10, provider_ref = $11,
			monthly_cost = $12, activated_at = $13
		WHERE id = $1
	`, rec.ID, nullable(rec.TenantID), rec.Number, rec.CountryCode, rec.Provider, caps,
		string(rec.Status), rec.ExtensionCode, rec.ForwardingTo, rec.Universal, rec.ProviderRef,
		rec.MonthlyCost, rec.ActivatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrNumberConflict
		}
		return fmt.Errorf("carrier: failed to update number record: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNumberNotFound
	}
	return nil
}

func (s *PGNumberStore) ByID(ctx context.Context, id string) (*ProvisionedNumber, error) {
	return s.queryOne(ctx, `WHERE id = $1`, id)
}

func (s *PGNumberStore) ActiveByNumber(ctx context.Context, number string) (*ProvisionedNumber, error) {
	return s.queryOne(ctx, `WHERE number = $1 AND status = 'active' AND NOT universal`, number)
}

func (s *PGNumberStore) ActiveByExtension(ctx context.Context, code string) (*ProvisionedNumber, error) {
	if code == "" {
		return nil, ErrNumberNotFound
	}
	return s.queryOne(ctx, `WHERE extension_code = $1 AND status = 'active'`, code)
}

func (s *PGNumberStore) ExtensionInUse(ctx context.Context, code string) (bool, error) {
	_, err := s.ActiveByExtension(ctx, code)
	if err == ErrNumberNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGNumberStore) queryOne(ctx context.Context, where string, arg any) (*ProvisionedNumber, error) {
	if s == nil || s.db == nil {
		return nil, ErrNumberNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, number, country_code, provider, capabilities,
		       status, extension_code, forwarding_to, universal, provider_ref,
		       monthly_cost, created_at, activated_at
		FROM provisioned_numbers `+where+` LIMIT 1`, arg)

	var (
		rec      ProvisionedNumber
		tenantID sql.NullString
		caps     []byte
		status   string
	)
	err := row.Scan(&rec.ID, &tenantID, &rec.Number, &rec.CountryCode, &rec.Provider, &caps,
		&status, &rec.ExtensionCode, &rec.ForwardingTo, &rec.Universal, &rec.ProviderRef,
		&rec.MonthlyCost, &rec.CreatedAt, &rec.ActivatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNumberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("carrier: failed to load number record: %w", err)
	}
	rec.TenantID = tenantID.String
	rec.Status = NumberStatus(status)
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &rec.Capabilities); err != nil {
			return nil, fmt.Errorf("carrier: decode capabilities: %w", err)
		}
	}
	return &rec, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
