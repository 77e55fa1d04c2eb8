package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/coworkbill/domain/billing"
	"github.com/artpar/coworkbill/ports"
)

// ErrNotFound is returned when an entity is not found.
var ErrNotFound = billing.ErrNotFound

type storedInvoice struct {
	inv billing.Invoice
	seq uint64
}

// BillStore is an in-memory implementation of ports.BillStore.
type BillStore struct {
	mu       sync.RWMutex
	tenants  map[string]billing.Tenant
	invoices map[string]map[string]storedInvoice // tenantID -> invoiceID -> invoice
	seq      uint64

	clock ports.Clock
	ids   ports.IDGenerator
}

// NewBillStore creates a new in-memory bill store. The clock stamps
// CreatedAt on new invoices and ids names drafts that carry no ID.
func NewBillStore(clock ports.Clock, ids ports.IDGenerator) *BillStore {
	return &BillStore{
		tenants:  make(map[string]billing.Tenant),
		invoices: make(map[string]map[string]storedInvoice),
		clock:    clock,
		ids:      ids,
	}
}

// Ping always succeeds.
func (s *BillStore) Ping(ctx context.Context) error {
	return nil
}

// ListInvoices returns a tenant's invoices, newest first. Invoices created
// at the same instant are ordered by insertion, newest first.
func (s *BillStore) ListInvoices(ctx context.Context, tenantID string) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := make([]storedInvoice, 0, len(s.invoices[tenantID]))
	for _, si := range s.invoices[tenantID] {
		stored = append(stored, si)
	}
	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.inv.CreatedAt.Equal(b.inv.CreatedAt) {
			return a.inv.CreatedAt.After(b.inv.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]billing.Invoice, len(stored))
	for i, si := range stored {
		out[i] = si.inv
	}
	return out, nil
}

// GetInvoice retrieves one invoice.
func (s *BillStore) GetInvoice(ctx context.Context, ref billing.InvoiceRef) (billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	si, ok := s.invoices[ref.TenantID][ref.InvoiceID]
	if !ok {
		return billing.Invoice{}, ErrNotFound
	}
	return si.inv, nil
}

// CreateInvoice stores a draft for an existing tenant.
func (s *BillStore) CreateInvoice(ctx context.Context, tenantID string, draft billing.InvoiceDraft) (billing.InvoiceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenantID]; !ok {
		return billing.InvoiceRef{}, ErrNotFound
	}

	id := draft.ID
	if id == "" {
		id = s.ids.New()
	}
	if _, exists := s.invoices[tenantID][id]; exists {
		return billing.InvoiceRef{}, billing.ErrDuplicateInvoice
	}

	inv := draft.ToInvoice(tenantID, id, s.clock.Now())
	s.putLocked(inv)
	return inv.Ref(), nil
}

// Put stores a fully formed invoice as is, replacing any invoice with the
// same ID. Used to seed history.
func (s *BillStore) Put(inv billing.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(inv)
}

func (s *BillStore) putLocked(inv billing.Invoice) {
	if s.invoices[inv.TenantID] == nil {
		s.invoices[inv.TenantID] = make(map[string]storedInvoice)
	}
	s.seq++
	s.invoices[inv.TenantID][inv.ID] = storedInvoice{inv: inv, seq: s.seq}
}

// MarkOverdue moves an unpaid invoice to overdue.
func (s *BillStore) MarkOverdue(ctx context.Context, ref billing.InvoiceRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, ok := s.invoices[ref.TenantID][ref.InvoiceID]
	if !ok {
		return ErrNotFound
	}
	if si.inv.Status != billing.InvoiceStatusUnpaid {
		return nil
	}
	si.inv.Status = billing.InvoiceStatusOverdue
	s.invoices[ref.TenantID][ref.InvoiceID] = si
	return nil
}

// UpdateInvoice applies admin edits.
func (s *BillStore) UpdateInvoice(ctx context.Context, ref billing.InvoiceRef, upd billing.InvoiceUpdate) (billing.Invoice, error) {
	return s.modify(ref, upd.Apply)
}

// RecordPayment marks an invoice paid.
func (s *BillStore) RecordPayment(ctx context.Context, ref billing.InvoiceRef, p billing.Payment) (billing.Invoice, error) {
	return s.modify(ref, p.Apply)
}

func (s *BillStore) modify(ref billing.InvoiceRef, fn func(billing.Invoice) billing.Invoice) (billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, ok := s.invoices[ref.TenantID][ref.InvoiceID]
	if !ok {
		return billing.Invoice{}, ErrNotFound
	}
	si.inv = fn(si.inv)
	s.invoices[ref.TenantID][ref.InvoiceID] = si
	return si.inv, nil
}

// Ensure interface compliance.
var _ ports.BillStore = (*BillStore)(nil)
