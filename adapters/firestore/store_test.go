package firestore_test

import (
	"context"
	"os"
	"testing"
	"time"

	gfs "cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/coworkbill/adapters/firestore"
	"github.com/artpar/coworkbill/domain/billing"
)

// newEmulatorStore connects to the Firestore emulator, or skips.
func newEmulatorStore(t *testing.T) *firestore.BillStore {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := gfs.NewClient(ctx, "coworkbill-test")
	require.NoError(t, err)

	// Unique collections isolate test runs sharing one emulator.
	suffix := uuid.NewString()[:8]
	store := firestore.NewBillStore(client, firestore.Config{
		TenantsCollection: "tenants_" + suffix,
		BillsCollection:   "bills",
	})
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEmulator_CreateListMarkOverdue(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertTenant(ctx, billing.Tenant{ID: "T", Name: "Ada"}))

	first := billing.InvoiceDraft{
		AssignedResource: "A12",
		Amount:           300,
		FeePeriod:        billing.PeriodMonthly,
		Status:           billing.InvoiceStatusUnpaid,
		StartDate:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DueDate:          time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	ref, err := store.CreateInvoice(ctx, "T", first)
	require.NoError(t, err)

	second := first
	second.ID = "cycle-key"
	second.StartDate = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.CreateInvoice(ctx, "T", second)
	require.NoError(t, err)
	_, err = store.CreateInvoice(ctx, "T", second)
	assert.ErrorIs(t, err, billing.ErrDuplicateInvoice)

	invoices, err := store.ListInvoices(ctx, "T")
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "cycle-key", invoices[0].ID)

	require.NoError(t, store.MarkOverdue(ctx, ref))
	got, err := store.GetInvoice(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusOverdue, got.Status)

	paid, err := store.RecordPayment(ctx, ref, billing.Payment{LateFee: 15, PaidAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, paid.Status)

	require.NoError(t, store.MarkOverdue(ctx, ref))
	got, _ = store.GetInvoice(ctx, ref)
	assert.Equal(t, billing.InvoiceStatusPaid, got.Status)

	err = store.MarkOverdue(ctx, billing.InvoiceRef{TenantID: "T", InvoiceID: "missing"})
	assert.ErrorIs(t, err, billing.ErrNotFound)
}
