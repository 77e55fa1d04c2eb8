package billing_test

import (
	"testing"
	"time"

	"github.com/artpar/coworkbill/domain/billing"
)

func a12Invoice() billing.Invoice {
	return billing.Invoice{
		ID:               "inv_1",
		TenantID:         "T",
		AssignedResource: "A12",
		ClientName:       "Ada",
		ServiceType:      "Dedicated Desk",
		Amount:           300,
		CusaFee:          25,
		ParkingFee:       10,
		LateFee:          20,
		DamageFee:        50,
		FeePeriod:        billing.PeriodMonthly,
		Status:           billing.InvoiceStatusUnpaid,
		StartDate:        ptr(date(2024, 1, 1)),
		DueDate:          ptr(date(2024, 1, 31)),
		CreatedAt:        date(2024, 1, 1),
		BookingID:        "bk_9",
	}
}

func TestGroupByResource_PreservesOrder(t *testing.T) {
	invoices := []billing.Invoice{
		{ID: "3", AssignedResource: "A12"},
		{ID: "2", Desk: "D4"},
		{ID: "1", AssignedResource: "A12"},
		{ID: "0"},
	}

	groups := billing.GroupByResource(invoices)

	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	if groups[0].Resource != "A12" || len(groups[0].Invoices) != 2 {
		t.Errorf("groups[0] = %s with %d invoices, want A12 with 2", groups[0].Resource, len(groups[0].Invoices))
	}
	if ref, _ := groups[0].Reference(); ref.ID != "3" {
		t.Errorf("A12 reference = %s, want 3", ref.ID)
	}
	if groups[1].Resource != "D4" {
		t.Errorf("groups[1].Resource = %s, want D4", groups[1].Resource)
	}
	if groups[2].Resource != billing.UnknownResource {
		t.Errorf("groups[2].Resource = %s, want Unknown", groups[2].Resource)
	}
}

func TestDetect(t *testing.T) {
	now := date(2024, 2, 5)

	tests := []struct {
		name   string
		mutate func(*billing.Invoice)
		want   billing.SkipReason
	}{
		{"due", func(*billing.Invoice) {}, billing.SkipNone},
		{"no fee period", func(i *billing.Invoice) { i.FeePeriod = "" }, billing.SkipNoFeePeriod},
		{"no due date", func(i *billing.Invoice) { i.DueDate = nil }, billing.SkipNoDueDate},
		{"zero due date", func(i *billing.Invoice) { i.DueDate = ptr(time.Time{}) }, billing.SkipNoDueDate},
		{"sentinel due date", func(i *billing.Invoice) { i.DueDate = ptr(date(1999, 12, 31)) }, billing.SkipInvalidDueDate},
		{"not yet due", func(i *billing.Invoice) { i.DueDate = ptr(date(2024, 2, 10)) }, billing.SkipNotDue},
		{"due exactly now", func(i *billing.Invoice) { i.DueDate = ptr(now) }, billing.SkipNotDue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := a12Invoice()
			tt.mutate(&inv)
			g := billing.ResourceGroup{Resource: "A12", Invoices: []billing.Invoice{inv}}
			if got := billing.Detect(g, now); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := billing.Detect(billing.ResourceGroup{}, now); got != billing.SkipEmpty {
		t.Errorf("Detect(empty) = %q, want empty", got)
	}
}

func TestOverdueCandidates_AllUnpaidPastDue(t *testing.T) {
	now := date(2024, 4, 5)
	g := billing.ResourceGroup{Resource: "A12", Invoices: []billing.Invoice{
		{ID: "3", Status: billing.InvoiceStatusUnpaid, DueDate: ptr(date(2024, 4, 1))},
		{ID: "2", Status: billing.InvoiceStatusUnpaid, DueDate: ptr(date(2024, 3, 2))},
		{ID: "1", Status: billing.InvoiceStatusPaid, DueDate: ptr(date(2024, 1, 31))},
		{ID: "0", Status: billing.InvoiceStatusOverdue, DueDate: ptr(date(2023, 12, 31))},
		{ID: "x", Status: billing.InvoiceStatusUnpaid, DueDate: ptr(date(2024, 5, 1))},
	}}

	got := billing.OverdueCandidates(g, now)

	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "2" {
		t.Errorf("OverdueCandidates() = %+v, want invoices 3 and 2", got)
	}
}

func TestPlanRollover_EndToEndA12(t *testing.T) {
	cal := billing.DefaultCalendar()
	inv := a12Invoice()
	g := billing.ResourceGroup{Resource: "A12", Invoices: []billing.Invoice{inv}}

	r := billing.PlanRollover(g, billing.Tenant{ID: "T"}, date(2024, 2, 5), cal)

	if r.Skip != billing.SkipNone {
		t.Fatalf("Skip = %q, want none", r.Skip)
	}
	if len(r.MarkOverdue) != 1 || r.MarkOverdue[0] != inv.Ref() {
		t.Errorf("MarkOverdue = %+v, want [%+v]", r.MarkOverdue, inv.Ref())
	}
	if r.Successor == nil {
		t.Fatal("Successor is nil")
	}
	s := r.Successor
	if !s.StartDate.Equal(date(2024, 2, 1)) || !s.DueDate.Equal(date(2024, 3, 2)) {
		t.Errorf("cycle = %v..%v, want 2024-02-01..2024-03-02", s.StartDate, s.DueDate)
	}
	if s.Status != billing.InvoiceStatusUnpaid {
		t.Errorf("Status = %s, want unpaid", s.Status)
	}
	if s.LateFee != 0 || s.DamageFee != 0 {
		t.Errorf("penalties = %v/%v, want 0/0", s.LateFee, s.DamageFee)
	}
	if s.Amount != 300 || s.CusaFee != 25 || s.ParkingFee != 10 {
		t.Errorf("recurring fees = %v/%v/%v, want 300/25/10", s.Amount, s.CusaFee, s.ParkingFee)
	}
	if s.AssignedResource != "A12" || s.FeePeriod != billing.PeriodMonthly {
		t.Errorf("resource/period = %s/%s", s.AssignedResource, s.FeePeriod)
	}
	if s.BookingID != "bk_9" || s.ServiceType != "Dedicated Desk" {
		t.Errorf("carried fields = %q/%q", s.BookingID, s.ServiceType)
	}
}

func TestPlanRollover_ExistingCycleWithinTolerance(t *testing.T) {
	cal := billing.DefaultCalendar()
	prev := a12Invoice()
	prev.Status = billing.InvoiceStatusOverdue
	// A document a few hours off the expected start already covers the cycle.
	next := billing.Invoice{
		ID:               "inv_2",
		AssignedResource: "A12",
		FeePeriod:        billing.PeriodMonthly,
		Status:           billing.InvoiceStatusUnpaid,
		StartDate:        ptr(date(2024, 2, 1).Add(3 * time.Hour)),
		DueDate:          ptr(date(2024, 3, 2)),
	}
	g := billing.ResourceGroup{Resource: "A12", Invoices: []billing.Invoice{prev, next}}

	r := billing.PlanRollover(g, billing.Tenant{}, date(2024, 2, 5), cal)

	if r.Successor != nil {
		t.Errorf("Successor = %+v, want nil", r.Successor)
	}
	if r.Existing != "inv_2" {
		t.Errorf("Existing = %q, want inv_2", r.Existing)
	}
}

func TestPlanRollover_TestPeriodTolerance(t *testing.T) {
	cal := billing.DefaultCalendar()
	due := time.Date(2024, 2, 5, 10, 0, 0, 0, time.UTC)
	ref := billing.Invoice{
		ID:               "inv_1",
		AssignedResource: "P1",
		FeePeriod:        billing.PeriodTest,
		Status:           billing.InvoiceStatusUnpaid,
		DueDate:          ptr(due),
	}
	// Two minutes away from the expected start (10:01): outside the
	// one-minute tolerance, so a new invoice is still planned.
	other := billing.Invoice{ID: "inv_0", AssignedResource: "P1", StartDate: ptr(due.Add(3 * time.Minute))}
	g := billing.ResourceGroup{Resource: "P1", Invoices: []billing.Invoice{ref, other}}

	r := billing.PlanRollover(g, billing.Tenant{}, due.Add(2*time.Minute), cal)

	if r.Successor == nil {
		t.Fatal("Successor is nil, want planned")
	}
	if want := due.Add(time.Minute); !r.Successor.StartDate.Equal(want) {
		t.Errorf("StartDate = %v, want %v", r.Successor.StartDate, want)
	}
	if want := due.Add(6 * time.Minute); !r.Successor.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", r.Successor.DueDate, want)
	}
}

func TestPlanRollover_SkipsIncompleteConfig(t *testing.T) {
	cal := billing.DefaultCalendar()
	inv := a12Invoice()
	inv.FeePeriod = ""
	g := billing.ResourceGroup{Resource: "A12", Invoices: []billing.Invoice{inv}}

	// Years later the group is still left alone.
	r := billing.PlanRollover(g, billing.Tenant{}, date(2030, 1, 1), cal)

	if r.Skip != billing.SkipNoFeePeriod {
		t.Errorf("Skip = %q, want no_fee_period", r.Skip)
	}
	if len(r.MarkOverdue) != 0 || r.Successor != nil {
		t.Errorf("skipped group produced actions: %+v", r)
	}
}

func TestSuccessor_FallsBackToTenantProfile(t *testing.T) {
	ref := billing.Invoice{ClientName: "", Email: "billing@acme.test", Amount: 10}
	tenant := billing.Tenant{Name: "Grace", CompanyName: "Acme", Email: "grace@acme.test", ContactNumber: "+1 555"}

	d := billing.Successor(ref, "O7", tenant, date(2024, 2, 1), date(2024, 3, 2))

	if d.ClientName != "Grace" {
		t.Errorf("ClientName = %q, want Grace", d.ClientName)
	}
	if d.Email != "billing@acme.test" {
		t.Errorf("Email = %q, want invoice value kept", d.Email)
	}
	if d.CompanyName != "Acme" || d.ContactNumber != "+1 555" {
		t.Errorf("CompanyName/ContactNumber = %q/%q", d.CompanyName, d.ContactNumber)
	}
}
