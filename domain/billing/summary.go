package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingRow is the list view of one tenant and resource.
type BillingRow struct {
	TenantID         string
	BillID           string
	Name             string
	Email            string
	Phone            string
	CompanyName      string
	ServiceType      string
	AssignedResource string
	Amount           float64
	CusaFee          float64
	ParkingFee       float64
	LateFee          float64
	DamageFee        float64
	FeePeriod        string
	Status           InvoiceStatus
	DueDate          *time.Time
	StartDate        *time.Time
	AllBillsPaid     bool
}

// statusRank orders statuses by how urgently an admin needs to see them.
func statusRank(s InvoiceStatus) int {
	switch s {
	case InvoiceStatusOverdue:
		return 2
	case InvoiceStatusUnpaid:
		return 1
	}
	return 0
}

// GroupStatus returns overdue if any invoice is overdue, else unpaid if
// any is unpaid, else paid.
func GroupStatus(g ResourceGroup) InvoiceStatus {
	status := InvoiceStatusPaid
	for _, inv := range g.Invoices {
		if statusRank(inv.Status) > statusRank(status) {
			status = inv.Status
		}
	}
	return status
}

// Representative picks the invoice shown for a group: the most recent
// overdue one, else the most recent unpaid one, else the most recent.
func Representative(g ResourceGroup) (Invoice, bool) {
	best := -1
	for i, inv := range g.Invoices {
		if best < 0 || statusRank(inv.Status) > statusRank(g.Invoices[best].Status) {
			best = i
		}
	}
	if best < 0 {
		return Invoice{}, false
	}
	return g.Invoices[best], true
}

// Summarize builds one row per resource for a tenant's invoices, which
// must be ordered newest first.
func Summarize(tenant Tenant, invoices []Invoice) []BillingRow {
	var rows []BillingRow
	for _, g := range GroupByResource(invoices) {
		inv, ok := Representative(g)
		if !ok {
			continue
		}
		status := GroupStatus(g)
		rows = append(rows, BillingRow{
			TenantID:         tenant.ID,
			BillID:           inv.ID,
			Name:             firstNonEmpty(inv.ClientName, tenant.Name),
			Email:            firstNonEmpty(inv.Email, tenant.Email),
			Phone:            firstNonEmpty(inv.ContactNumber, tenant.ContactNumber),
			CompanyName:      firstNonEmpty(inv.CompanyName, tenant.CompanyName),
			ServiceType:      inv.ServiceType,
			AssignedResource: g.Resource,
			Amount:           inv.Amount,
			CusaFee:          inv.CusaFee,
			ParkingFee:       inv.ParkingFee,
			LateFee:          inv.LateFee,
			DamageFee:        inv.DamageFee,
			FeePeriod:        inv.FeePeriod,
			Status:           status,
			DueDate:          inv.DueDate,
			StartDate:        inv.StartDate,
			AllBillsPaid:     status == InvoiceStatusPaid,
		})
	}
	return rows
}

// Stats aggregates invoices by status.
type Stats struct {
	TotalBills   int
	TotalRevenue decimal.Decimal
	PaidCount    int
	UnpaidAmount decimal.Decimal
	OverdueCount int
}

// InvoiceTotal returns the sum of an invoice's fee fields as a decimal.
func InvoiceTotal(inv Invoice) decimal.Decimal {
	return decimal.NewFromFloat(inv.Amount).
		Add(decimal.NewFromFloat(inv.CusaFee)).
		Add(decimal.NewFromFloat(inv.ParkingFee)).
		Add(decimal.NewFromFloat(inv.LateFee)).
		Add(decimal.NewFromFloat(inv.DamageFee))
}

// ComputeStats sums fee fields per status. Revenue counts paid invoices;
// the unpaid amount counts both unpaid and overdue invoices.
func ComputeStats(invoices []Invoice) Stats {
	s := Stats{TotalRevenue: decimal.Zero, UnpaidAmount: decimal.Zero}
	for _, inv := range invoices {
		s.TotalBills++
		total := InvoiceTotal(inv)
		switch inv.Status {
		case InvoiceStatusPaid:
			s.PaidCount++
			s.TotalRevenue = s.TotalRevenue.Add(total)
		case InvoiceStatusOverdue:
			s.OverdueCount++
			s.UnpaidAmount = s.UnpaidAmount.Add(total)
		case InvoiceStatusUnpaid:
			s.UnpaidAmount = s.UnpaidAmount.Add(total)
		}
	}
	return s
}
