package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/coworkbill/adapters/clock"
	"github.com/artpar/coworkbill/adapters/idgen"
	"github.com/artpar/coworkbill/adapters/memory"
	"github.com/artpar/coworkbill/domain/billing"
)

var epoch = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*memory.BillStore, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	store := memory.NewBillStore(clk, idgen.NewSequential("inv_"))
	if err := store.UpsertTenant(context.Background(), billing.Tenant{ID: "T", Name: "Ada"}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	return store, clk
}

func draft(resource string) billing.InvoiceDraft {
	return billing.InvoiceDraft{
		AssignedResource: resource,
		Amount:           100,
		FeePeriod:        billing.PeriodMonthly,
		Status:           billing.InvoiceStatusUnpaid,
		StartDate:        epoch,
		DueDate:          epoch.Add(30 * 24 * time.Hour),
	}
}

func TestBillStore_CreateAndList(t *testing.T) {
	store, clk := newStore(t)
	ctx := context.Background()

	ref1, err := store.CreateInvoice(ctx, "T", draft("A12"))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	clk.Advance(time.Minute)
	ref2, _ := store.CreateInvoice(ctx, "T", draft("A12"))

	if ref1.InvoiceID != "inv_1" || ref2.InvoiceID != "inv_2" {
		t.Errorf("IDs = %s, %s; want inv_1, inv_2", ref1.InvoiceID, ref2.InvoiceID)
	}

	invoices, err := store.ListInvoices(ctx, "T")
	if err != nil {
		t.Fatalf("ListInvoices failed: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("expected 2 invoices, got %d", len(invoices))
	}
	if invoices[0].ID != "inv_2" {
		t.Errorf("newest first: got %s, want inv_2", invoices[0].ID)
	}
	if !invoices[0].CreatedAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("CreatedAt = %v, want store clock time", invoices[0].CreatedAt)
	}
}

func TestBillStore_ListSameInstantByInsertion(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	store.CreateInvoice(ctx, "T", draft("A12"))
	store.CreateInvoice(ctx, "T", draft("B1"))

	invoices, _ := store.ListInvoices(ctx, "T")
	if invoices[0].AssignedResource != "B1" {
		t.Errorf("first = %s, want B1 (inserted last)", invoices[0].AssignedResource)
	}
}

func TestBillStore_CreateWithKeyConflict(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	d := draft("A12")
	d.ID = "cycle-key"
	if _, err := store.CreateInvoice(ctx, "T", d); err != nil {
		t.Fatalf("first create: %v", err)
	}
	d.Amount = 999
	_, err := store.CreateInvoice(ctx, "T", d)
	if !errors.Is(err, billing.ErrDuplicateInvoice) {
		t.Errorf("second create error = %v, want ErrDuplicateInvoice", err)
	}

	inv, _ := store.GetInvoice(ctx, billing.InvoiceRef{TenantID: "T", InvoiceID: "cycle-key"})
	if inv.Amount != 100 {
		t.Errorf("Amount = %v, want original 100", inv.Amount)
	}
}

func TestBillStore_CreateUnknownTenant(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.CreateInvoice(context.Background(), "nobody", draft("A12"))
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestBillStore_MarkOverdue(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	store.Put(billing.Invoice{ID: "u", TenantID: "T", Status: billing.InvoiceStatusUnpaid})
	store.Put(billing.Invoice{ID: "p", TenantID: "T", Status: billing.InvoiceStatusPaid})

	for _, id := range []string{"u", "u", "p"} {
		if err := store.MarkOverdue(ctx, billing.InvoiceRef{TenantID: "T", InvoiceID: id}); err != nil {
			t.Fatalf("MarkOverdue(%s): %v", id, err)
		}
	}

	u, _ := store.GetInvoice(ctx, billing.InvoiceRef{TenantID: "T", InvoiceID: "u"})
	if u.Status != billing.InvoiceStatusOverdue {
		t.Errorf("u.Status = %s, want overdue", u.Status)
	}
	p, _ := store.GetInvoice(ctx, billing.InvoiceRef{TenantID: "T", InvoiceID: "p"})
	if p.Status != billing.InvoiceStatusPaid {
		t.Errorf("p.Status = %s, want paid (untouched)", p.Status)
	}

	err := store.MarkOverdue(ctx, billing.InvoiceRef{TenantID: "T", InvoiceID: "missing"})
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("missing invoice error = %v, want ErrNotFound", err)
	}
}

func TestBillStore_RecordPaymentAndUpdate(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	ref, _ := store.CreateInvoice(ctx, "T", draft("A12"))

	amount := 150.0
	inv, err := store.UpdateInvoice(ctx, ref, billing.InvoiceUpdate{Amount: &amount})
	if err != nil {
		t.Fatalf("UpdateInvoice: %v", err)
	}
	if inv.Amount != 150 {
		t.Errorf("Amount = %v, want 150", inv.Amount)
	}

	inv, err = store.RecordPayment(ctx, ref, billing.Payment{LateFee: 10, PaidAt: epoch})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if inv.Status != billing.InvoiceStatusPaid || inv.LateFee != 10 || inv.PaidAt == nil {
		t.Errorf("after payment = %s/%v/%v", inv.Status, inv.LateFee, inv.PaidAt)
	}

	_, err = store.RecordPayment(ctx, billing.InvoiceRef{TenantID: "T", InvoiceID: "nope"}, billing.Payment{})
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestBillStore_Tenants(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	store.UpsertTenant(ctx, billing.Tenant{ID: "A", Name: "First"})
	store.UpsertTenant(ctx, billing.Tenant{ID: "T", Name: "Ada Lovelace"})

	tenants, _ := store.ListTenants(ctx)
	if len(tenants) != 2 || tenants[0].ID != "A" || tenants[1].ID != "T" {
		t.Errorf("ListTenants() = %+v", tenants)
	}

	got, err := store.GetTenant(ctx, "T")
	if err != nil || got.Name != "Ada Lovelace" {
		t.Errorf("GetTenant(T) = %+v, %v", got, err)
	}

	if err := store.UpsertTenant(ctx, billing.Tenant{}); !errors.Is(err, billing.ErrInvalidInput) {
		t.Errorf("UpsertTenant(empty) = %v, want ErrInvalidInput", err)
	}
}
