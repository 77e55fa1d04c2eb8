package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/artpar/coworkbill/domain/billing"
)

// ErrNotFound is returned when an entity is not found.
var ErrNotFound = billing.ErrNotFound

// ListTenants returns all tenants ordered by ID.
func (s *BillStore) ListTenants(ctx context.Context) ([]billing.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company_name, email, contact_number
		FROM tenants
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []billing.Tenant
	for rows.Next() {
		var t billing.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CompanyName, &t.Email, &t.ContactNumber); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetTenant retrieves a tenant by ID.
func (s *BillStore) GetTenant(ctx context.Context, tenantID string) (billing.Tenant, error) {
	var t billing.Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, company_name, email, contact_number
		FROM tenants WHERE id = ?
	`, tenantID).Scan(&t.ID, &t.Name, &t.CompanyName, &t.Email, &t.ContactNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Tenant{}, ErrNotFound
	}
	if err != nil {
		return billing.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// UpsertTenant creates or replaces a tenant profile.
func (s *BillStore) UpsertTenant(ctx context.Context, t billing.Tenant) error {
	if t.ID == "" {
		return billing.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, company_name, email, contact_number, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			company_name = excluded.company_name,
			email = excluded.email,
			contact_number = excluded.contact_number,
			updated_at = CURRENT_TIMESTAMP
	`, t.ID, t.Name, t.CompanyName, t.Email, t.ContactNumber)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}
