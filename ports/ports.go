// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/coworkbill/domain/billing"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Locker guards work that must not run on two instances at once.
type Locker interface {
	// TryLock acquires the named lock for ttl. It returns false without
	// error when another holder owns the lock.
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Unlock releases a lock previously acquired by this locker.
	Unlock(ctx context.Context, name string) error
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// InvoiceStore is the persistent document store as seen by the recurring
// billing engine.
type InvoiceStore interface {
	// ListTenants returns all known tenants.
	ListTenants(ctx context.Context) ([]billing.Tenant, error)

	// ListInvoices returns a tenant's invoices, newest CreatedAt first.
	ListInvoices(ctx context.Context, tenantID string) ([]billing.Invoice, error)

	// MarkOverdue moves an unpaid invoice to overdue. It is a no-op for
	// invoices that are already overdue or paid.
	MarkOverdue(ctx context.Context, ref billing.InvoiceRef) error

	// CreateInvoice persists a draft with a store-assigned creation time.
	// A draft ID that already exists yields billing.ErrDuplicateInvoice.
	CreateInvoice(ctx context.Context, tenantID string, draft billing.InvoiceDraft) (billing.InvoiceRef, error)
}

// BillStore adds the reads and writes used by the billing endpoints.
type BillStore interface {
	InvoiceStore
	HealthChecker

	// GetTenant retrieves a tenant by ID.
	GetTenant(ctx context.Context, tenantID string) (billing.Tenant, error)

	// GetInvoice retrieves one invoice.
	GetInvoice(ctx context.Context, ref billing.InvoiceRef) (billing.Invoice, error)

	// UpdateInvoice applies admin edits and returns the stored invoice.
	UpdateInvoice(ctx context.Context, ref billing.InvoiceRef, upd billing.InvoiceUpdate) (billing.Invoice, error)

	// RecordPayment marks an invoice paid and returns the stored invoice.
	RecordPayment(ctx context.Context, ref billing.InvoiceRef, p billing.Payment) (billing.Invoice, error)

	// UpsertTenant creates or replaces a tenant profile.
	UpsertTenant(ctx context.Context, t billing.Tenant) error
}
