// Package firestore provides a Cloud Firestore implementation of the bill
// store. Invoices live in a per-tenant subcollection:
// {tenants}/{tenantID}/{bills}/{invoiceID}.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/artpar/coworkbill/domain/billing"
	"github.com/artpar/coworkbill/ports"
)

// Config selects the project and collection names.
type Config struct {
	ProjectID         string
	CredentialsFile   string
	TenantsCollection string
	BillsCollection   string
}

func (c Config) withDefaults() Config {
	if c.TenantsCollection == "" {
		c.TenantsCollection = "tenants"
	}
	if c.BillsCollection == "" {
		c.BillsCollection = "bills"
	}
	return c
}

// NewClient connects to Firestore through a Firebase app. When the
// FIRESTORE_EMULATOR_HOST environment variable is set the client talks to
// the emulator.
func NewClient(ctx context.Context, cfg Config) (*firestore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}
	return client, nil
}

// BillStore implements ports.BillStore on Firestore. A store built with a
// nil client reports billing.ErrStoreUnavailable from every call.
type BillStore struct {
	client *firestore.Client
	cfg    Config
}

// NewBillStore creates a Firestore bill store.
func NewBillStore(client *firestore.Client, cfg Config) *BillStore {
	return &BillStore{client: client, cfg: cfg.withDefaults()}
}

// Close releases the client.
func (s *BillStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *BillStore) tenants() *firestore.CollectionRef {
	return s.client.Collection(s.cfg.TenantsCollection)
}

func (s *BillStore) bills(tenantID string) *firestore.CollectionRef {
	return s.tenants().Doc(tenantID).Collection(s.cfg.BillsCollection)
}

func (s *BillStore) ready() error {
	if s.client == nil {
		return billing.ErrStoreUnavailable
	}
	return nil
}

// Ping reads at most one tenant document.
func (s *BillStore) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	iter := s.tenants().Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return mapError(err)
	}
	return nil
}

// ListTenants returns all tenant documents.
func (s *BillStore) ListTenants(ctx context.Context) ([]billing.Tenant, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	iter := s.tenants().Documents(ctx)
	defer iter.Stop()

	var tenants []billing.Tenant
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tenants: %w", mapError(err))
		}
		tenants = append(tenants, decodeTenant(doc.Ref.ID, doc.Data()))
	}
	return tenants, nil
}

// GetTenant retrieves a tenant document.
func (s *BillStore) GetTenant(ctx context.Context, tenantID string) (billing.Tenant, error) {
	if err := s.ready(); err != nil {
		return billing.Tenant{}, err
	}
	doc, err := s.tenants().Doc(tenantID).Get(ctx)
	if err != nil {
		return billing.Tenant{}, mapError(err)
	}
	return decodeTenant(doc.Ref.ID, doc.Data()), nil
}

// UpsertTenant merges a tenant profile into its document.
func (s *BillStore) UpsertTenant(ctx context.Context, t billing.Tenant) error {
	if err := s.ready(); err != nil {
		return err
	}
	if t.ID == "" {
		return billing.ErrInvalidInput
	}
	_, err := s.tenants().Doc(t.ID).Set(ctx, encodeTenant(t), firestore.MergeAll)
	return mapError(err)
}

// ListInvoices returns a tenant's bills ordered by createdAt descending.
func (s *BillStore) ListInvoices(ctx context.Context, tenantID string) ([]billing.Invoice, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	iter := s.bills(tenantID).OrderBy(fieldCreatedAt, firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var invoices []billing.Invoice
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list bills of %s: %w", tenantID, mapError(err))
		}
		invoices = append(invoices, decodeInvoice(tenantID, doc.Ref.ID, doc.Data()))
	}
	return invoices, nil
}

// GetInvoice retrieves one bill.
func (s *BillStore) GetInvoice(ctx context.Context, ref billing.InvoiceRef) (billing.Invoice, error) {
	if err := s.ready(); err != nil {
		return billing.Invoice{}, err
	}
	doc, err := s.bills(ref.TenantID).Doc(ref.InvoiceID).Get(ctx)
	if err != nil {
		return billing.Invoice{}, mapError(err)
	}
	return decodeInvoice(ref.TenantID, doc.Ref.ID, doc.Data()), nil
}

// CreateInvoice writes a new bill with a server timestamp. Drafts with an
// ID use it as the document ID and fail with billing.ErrDuplicateInvoice
// when it is taken.
func (s *BillStore) CreateInvoice(ctx context.Context, tenantID string, draft billing.InvoiceDraft) (billing.InvoiceRef, error) {
	if err := s.ready(); err != nil {
		return billing.InvoiceRef{}, err
	}

	doc := s.bills(tenantID).NewDoc()
	if draft.ID != "" {
		doc = s.bills(tenantID).Doc(draft.ID)
	}

	if _, err := doc.Create(ctx, encodeDraft(draft)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return billing.InvoiceRef{}, billing.ErrDuplicateInvoice
		}
		return billing.InvoiceRef{}, fmt.Errorf("create bill: %w", mapError(err))
	}
	return billing.InvoiceRef{TenantID: tenantID, InvoiceID: doc.ID}, nil
}

// MarkOverdue flips an unpaid bill to overdue inside a transaction, so a
// payment recorded concurrently is never overwritten.
func (s *BillStore) MarkOverdue(ctx context.Context, ref billing.InvoiceRef) error {
	if err := s.ready(); err != nil {
		return err
	}

	doc := s.bills(ref.TenantID).Doc(ref.InvoiceID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			return err
		}
		if decodeStatus(snap.Data()[fieldStatus]) != billing.InvoiceStatusUnpaid {
			return nil
		}
		return tx.Update(doc, []firestore.Update{
			{Path: fieldStatus, Value: string(billing.InvoiceStatusOverdue)},
			{Path: fieldUpdatedAt, Value: firestore.ServerTimestamp},
		})
	})
	return mapError(err)
}

// UpdateInvoice applies admin edits.
func (s *BillStore) UpdateInvoice(ctx context.Context, ref billing.InvoiceRef, upd billing.InvoiceUpdate) (billing.Invoice, error) {
	return s.modify(ctx, ref, upd.Apply)
}

// RecordPayment marks a bill paid.
func (s *BillStore) RecordPayment(ctx context.Context, ref billing.InvoiceRef, p billing.Payment) (billing.Invoice, error) {
	return s.modify(ctx, ref, p.Apply)
}

func (s *BillStore) modify(ctx context.Context, ref billing.InvoiceRef, fn func(billing.Invoice) billing.Invoice) (billing.Invoice, error) {
	if err := s.ready(); err != nil {
		return billing.Invoice{}, err
	}

	doc := s.bills(ref.TenantID).Doc(ref.InvoiceID)
	var out billing.Invoice
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			return err
		}
		out = fn(decodeInvoice(ref.TenantID, ref.InvoiceID, snap.Data()))
		return tx.Update(doc, invoiceUpdates(out))
	})
	if err != nil {
		return billing.Invoice{}, mapError(err)
	}
	return out, nil
}

// mapError translates gRPC status codes into billing sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return billing.ErrNotFound
	case codes.AlreadyExists:
		return billing.ErrDuplicateInvoice
	case codes.Unavailable, codes.DeadlineExceeded, codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %v", billing.ErrStoreUnavailable, err)
	}
	return err
}

// Ensure interface compliance.
var _ ports.BillStore = (*BillStore)(nil)
