package memory

import (
	"context"
	"sort"

	"github.com/artpar/coworkbill/domain/billing"
)

// ListTenants returns all tenants ordered by ID.
func (s *BillStore) ListTenants(ctx context.Context) ([]billing.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]billing.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetTenant retrieves a tenant by ID.
func (s *BillStore) GetTenant(ctx context.Context, tenantID string) (billing.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return billing.Tenant{}, ErrNotFound
	}
	return t, nil
}

// UpsertTenant creates or replaces a tenant profile.
func (s *BillStore) UpsertTenant(ctx context.Context, t billing.Tenant) error {
	if t.ID == "" {
		return billing.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenants[t.ID] = t
	return nil
}
