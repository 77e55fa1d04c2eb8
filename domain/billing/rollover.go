package billing

import "time"

// ResourceGroup is one tenant's invoices for one resource, most recent first.
type ResourceGroup struct {
	Resource string
	Invoices []Invoice
}

// Reference returns the most recent invoice of the group.
func (g ResourceGroup) Reference() (Invoice, bool) {
	if len(g.Invoices) == 0 {
		return Invoice{}, false
	}
	return g.Invoices[0], true
}

// GroupByResource splits invoices by resolved resource key. Input order is
// preserved inside each group and groups are returned in order of first
// appearance, so a list sorted newest first yields groups whose first
// element is the reference invoice.
func GroupByResource(invoices []Invoice) []ResourceGroup {
	index := make(map[string]int)
	var groups []ResourceGroup
	for _, inv := range invoices {
		key := ResourceKey(inv)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, ResourceGroup{Resource: key})
		}
		groups[i].Invoices = append(groups[i].Invoices, inv)
	}
	return groups
}

// SkipReason explains why a group is not rolled over. The empty reason
// means the group is due.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipEmpty          SkipReason = "empty"
	SkipNoFeePeriod    SkipReason = "no_fee_period"
	SkipNoDueDate      SkipReason = "missing_due_date"
	SkipInvalidDueDate SkipReason = "invalid_due_date"
	SkipNotDue         SkipReason = "not_due"
)

// Detect decides whether a group is due for rollover at now.
// Groups whose reference invoice has no billing configuration are skipped.
func Detect(g ResourceGroup, now time.Time) SkipReason {
	ref, ok := g.Reference()
	if !ok {
		return SkipEmpty
	}
	if ref.FeePeriod == "" {
		return SkipNoFeePeriod
	}
	if ref.DueDate == nil || ref.DueDate.IsZero() {
		return SkipNoDueDate
	}
	if !ref.HasValidDueDate() {
		return SkipInvalidDueDate
	}
	if !now.After(*ref.DueDate) {
		return SkipNotDue
	}
	return SkipNone
}

// OverdueCandidates returns every unpaid invoice of the group that is past
// its own due date.
func OverdueCandidates(g ResourceGroup, now time.Time) []Invoice {
	var out []Invoice
	for _, inv := range g.Invoices {
		if inv.IsOverdueAt(now) {
			out = append(out, inv)
		}
	}
	return out
}

// FindCycle returns the invoice whose start date lies within tolerance of
// start, if any.
func FindCycle(g ResourceGroup, start time.Time, tolerance time.Duration) (Invoice, bool) {
	for _, inv := range g.Invoices {
		if inv.StartDate == nil {
			continue
		}
		diff := inv.StartDate.Sub(start)
		if diff < 0 {
			diff = -diff
		}
		if diff < tolerance {
			return inv, true
		}
	}
	return Invoice{}, false
}

// Successor builds the draft of the invoice that follows ref. Client
// fields fall back to the tenant profile. Late and damage fees are reset.
// This is a PURE function.
func Successor(ref Invoice, resource string, tenant Tenant, start, due time.Time) InvoiceDraft {
	return InvoiceDraft{
		AssignedResource: resource,
		ClientName:       firstNonEmpty(ref.ClientName, tenant.Name),
		CompanyName:      firstNonEmpty(ref.CompanyName, tenant.CompanyName),
		Email:            firstNonEmpty(ref.Email, tenant.Email),
		ContactNumber:    firstNonEmpty(ref.ContactNumber, tenant.ContactNumber),
		ServiceType:      ref.ServiceType,
		Amount:           ref.Amount,
		CusaFee:          ref.CusaFee,
		ParkingFee:       ref.ParkingFee,
		LateFee:          0,
		DamageFee:        0,
		FeePeriod:        ref.FeePeriod,
		Status:           InvoiceStatusUnpaid,
		StartDate:        start,
		DueDate:          due,
		BookingID:        ref.BookingID,
		RoomID:           ref.RoomID,
	}
}

// Rollover is the planned outcome for one resource group.
type Rollover struct {
	Resource string
	Skip     SkipReason

	// MarkOverdue lists unpaid invoices past their own due date.
	MarkOverdue []InvoiceRef

	// Successor is the next cycle's invoice, nil when one already exists.
	Successor *InvoiceDraft

	// Existing is the ID of the invoice already covering the next cycle.
	Existing string

	Period Period
}

// PlanRollover evaluates one group at now. This is a PURE function.
func PlanRollover(g ResourceGroup, tenant Tenant, now time.Time, cal *Calendar) Rollover {
	r := Rollover{Resource: g.Resource}
	if r.Skip = Detect(g, now); r.Skip != SkipNone {
		return r
	}

	for _, inv := range OverdueCandidates(g, now) {
		r.MarkOverdue = append(r.MarkOverdue, inv.Ref())
	}

	ref, _ := g.Reference()
	r.Period = cal.Lookup(ref.FeePeriod)
	start, due := cal.NextCycle(*ref.DueDate, ref.FeePeriod)
	if existing, ok := FindCycle(g, start, r.Period.Tolerance); ok {
		r.Existing = existing.ID
		return r
	}

	draft := Successor(ref, g.Resource, tenant, start, due)
	r.Successor = &draft
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
