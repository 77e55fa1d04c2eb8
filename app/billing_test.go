package app_test

import (
	"errors"
	"testing"
	"time"

	"github.com/artpar/coworkbill/adapters/idgen"
	"github.com/artpar/coworkbill/app"
	"github.com/artpar/coworkbill/domain/billing"
	"github.com/rs/zerolog"
)

func newBilling(f fixture) *app.BillingService {
	return app.NewBillingService(app.BillingServiceConfig{
		Store:  f.store,
		Clock:  f.clock,
		IDs:    idgen.NewSequential("new_"),
		Logger: zerolog.Nop(),
	})
}

func float(v float64) *float64 { return &v }
func str(v string) *string     { return &v }

func TestBillingService_ListAndStats(t *testing.T) {
	f := newFixture(t, date(2024, 2, 5), "T", "U")
	f.store.Put(a12("inv_1"))
	paid := a12("inv_9")
	paid.TenantID = "U"
	paid.AssignedResource = "O1"
	paid.Status = billing.InvoiceStatusPaid
	f.store.Put(paid)
	svc := newBilling(f)

	rows, err := svc.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].TenantID != "T" || rows[1].TenantID != "U" || !rows[1].AllBillsPaid {
		t.Errorf("rows = %+v", rows)
	}

	stats, err := svc.Stats(t.Context())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalBills != 2 || stats.PaidCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	// 300 + 25 + 10 + 20 + 50 on each side.
	if stats.TotalRevenue.String() != "405" || stats.UnpaidAmount.String() != "405" {
		t.Errorf("revenue/unpaid = %s/%s, want 405/405", stats.TotalRevenue, stats.UnpaidAmount)
	}
}

func TestBillingService_RecordPayment(t *testing.T) {
	f := newFixture(t, date(2024, 2, 10), "T")
	inv := a12("inv_1")
	inv.Status = billing.InvoiceStatusOverdue
	f.store.Put(inv)
	svc := newBilling(f)

	got, err := svc.RecordPayment(t.Context(), inv.Ref(), app.PaymentInput{LateFee: float(15)})
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if got.Status != billing.InvoiceStatusPaid || got.LateFee != 15 || got.DamageFee != 0 {
		t.Errorf("invoice = %s late=%v damage=%v", got.Status, got.LateFee, got.DamageFee)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(date(2024, 2, 10)) {
		t.Errorf("PaidAt = %v", got.PaidAt)
	}

	_, err = svc.RecordPayment(t.Context(), inv.Ref(), app.PaymentInput{DamageFee: float(-1)})
	if !errors.Is(err, billing.ErrInvalidInput) {
		t.Errorf("negative fee error = %v, want ErrInvalidInput", err)
	}

	_, err = svc.RecordPayment(t.Context(), billing.InvoiceRef{TenantID: "T", InvoiceID: "nope"}, app.PaymentInput{})
	if !errors.Is(err, billing.ErrNotFound) {
		t.Errorf("missing invoice error = %v, want ErrNotFound", err)
	}
}

func TestBillingService_UpdateBill(t *testing.T) {
	f := newFixture(t, date(2024, 2, 10), "T")
	inv := a12("inv_1")
	f.store.Put(inv)
	svc := newBilling(f)

	got, err := svc.UpdateBill(t.Context(), inv.Ref(), app.UpdateInput{
		Amount:    float(350),
		FeePeriod: str("quarterly"),
		DueDate:   str("2024-04-30"),
	})
	if err != nil {
		t.Fatalf("UpdateBill() error = %v", err)
	}
	if got.Amount != 350 || got.FeePeriod != billing.PeriodQuarterly || !got.DueDate.Equal(date(2024, 4, 30)) {
		t.Errorf("invoice = %v/%s/%v", got.Amount, got.FeePeriod, got.DueDate)
	}

	tests := []struct {
		name string
		in   app.UpdateInput
		want error
	}{
		{"bad date", app.UpdateInput{DueDate: str("30/04/2024")}, billing.ErrInvalidDueDate},
		{"unknown period", app.UpdateInput{FeePeriod: str("Weekly")}, billing.ErrInvalidInput},
		{"negative amount", app.UpdateInput{CusaFee: float(-5)}, billing.ErrInvalidInput},
		{"due before start", app.UpdateInput{DueDate: str("2023-12-01")}, billing.ErrInvalidInput},
		{"due equals start", app.UpdateInput{DueDate: str("2024-01-01")}, billing.ErrInvalidInput},
		{"missing invoice", app.UpdateInput{DueDate: str("2024-05-01")}, billing.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := inv.Ref()
			if tt.want == billing.ErrNotFound {
				ref.InvoiceID = "missing"
			}
			if _, err := svc.UpdateBill(t.Context(), ref, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("UpdateBill() error = %v, want %v", err, tt.want)
			}
		})
	}

	stored, err := f.store.GetInvoice(t.Context(), inv.Ref())
	if err != nil {
		t.Fatalf("GetInvoice() error = %v", err)
	}
	if !stored.DueDate.Equal(date(2024, 4, 30)) {
		t.Errorf("rejected updates changed DueDate to %v", stored.DueDate)
	}
}

func TestBillingService_CreateBill(t *testing.T) {
	now := time.Date(2024, 2, 10, 9, 30, 0, 0, time.UTC)
	f := newFixture(t, now, "T")
	svc := newBilling(f)

	got, err := svc.CreateBill(t.Context(), app.CreateInput{
		TenantID:         "T",
		AssignedResource: "A12",
		Amount:           300,
	})
	if err != nil {
		t.Fatalf("CreateBill() error = %v", err)
	}
	if got.ID != "new_1" || got.FeePeriod != billing.PeriodMonthly || got.Status != billing.InvoiceStatusUnpaid {
		t.Errorf("invoice = %s/%s/%s", got.ID, got.FeePeriod, got.Status)
	}
	if !got.StartDate.Equal(now) || !got.DueDate.Equal(now.Add(30*24*time.Hour)) {
		t.Errorf("cycle = %v..%v", got.StartDate, got.DueDate)
	}
	if got.ClientName != "Tenant T" {
		t.Errorf("ClientName = %q, want tenant profile name", got.ClientName)
	}

	got, err = svc.CreateBill(t.Context(), app.CreateInput{
		TenantID:         "T",
		AssignedResource: "D4",
		FeePeriod:        "Annually",
		StartDate:        "2024-03-01",
	})
	if err != nil {
		t.Fatalf("CreateBill(annual) error = %v", err)
	}
	if !got.DueDate.Equal(date(2025, 3, 1)) {
		t.Errorf("DueDate = %v, want 2025-03-01", got.DueDate)
	}

	tests := []struct {
		name string
		in   app.CreateInput
		want error
	}{
		{"missing resource", app.CreateInput{TenantID: "T"}, billing.ErrInvalidInput},
		{"missing tenant id", app.CreateInput{AssignedResource: "A1"}, billing.ErrInvalidInput},
		{"unknown tenant", app.CreateInput{TenantID: "X", AssignedResource: "A1"}, billing.ErrNotFound},
		{"bad due date", app.CreateInput{TenantID: "T", AssignedResource: "A1", DueDate: "soon"}, billing.ErrInvalidDueDate},
		{"unknown period", app.CreateInput{TenantID: "T", AssignedResource: "A1", FeePeriod: "Weekly"}, billing.ErrInvalidInput},
		{"due before start", app.CreateInput{TenantID: "T", AssignedResource: "A1", StartDate: "2024-03-01", DueDate: "2024-02-01"}, billing.ErrInvalidInput},
		{"due equals start", app.CreateInput{TenantID: "T", AssignedResource: "A1", StartDate: "2024-03-01", DueDate: "2024-03-01"}, billing.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateBill(t.Context(), tt.in); !errors.Is(err, tt.want) {
				t.Errorf("CreateBill() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBillingService_History(t *testing.T) {
	f := newFixture(t, date(2024, 2, 10), "T")
	f.store.Put(a12("inv_1"))
	svc := newBilling(f)

	invoices, err := svc.History(t.Context(), "T")
	if err != nil || len(invoices) != 1 {
		t.Errorf("History(T) = %d invoices, %v", len(invoices), err)
	}
	if _, err := svc.History(t.Context(), "X"); !errors.Is(err, billing.ErrNotFound) {
		t.Errorf("History(X) error = %v, want ErrNotFound", err)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-03-02", date(2024, 3, 2), false},
		{"2024-03-02T10:00:00Z", time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), false},
		{"2024-03-02T12:00:00+02:00", time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), false},
		{"March 2", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := app.ParseDate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate() = %v, want %v", got, tt.want)
			}
		})
	}
}
