// Package billing provides invoice, period and rollover value types and pure functions.
package billing

import "time"

// InvoiceStatus represents the state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Valid reports whether s is one of the known statuses.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// UnknownResource is the grouping key used when an invoice names no resource.
const UnknownResource = "Unknown"

// minValidYear marks due dates before it as sentinel values.
const minValidYear = 2000

// Tenant is an account holder (value type). Read-only to the engine.
type Tenant struct {
	ID            string
	Name          string
	CompanyName   string
	Email         string
	ContactNumber string
}

// InvoiceRef identifies one invoice under its owning tenant.
type InvoiceRef struct {
	TenantID  string
	InvoiceID string
}

// Invoice is one billing cycle for one tenant and resource (value type).
type Invoice struct {
	ID       string
	TenantID string

	// AssignedResource is the grouping key. Desk, Room and Office are
	// legacy names older documents may carry instead.
	AssignedResource string
	Desk             string
	Room             string
	Office           string

	ClientName    string
	CompanyName   string
	Email         string
	ContactNumber string
	ServiceType   string

	Amount     float64
	CusaFee    float64
	ParkingFee float64
	LateFee    float64
	DamageFee  float64

	FeePeriod string
	Status    InvoiceStatus
	StartDate *time.Time
	DueDate   *time.Time
	CreatedAt time.Time
	PaidAt    *time.Time

	// Linkage carried forward verbatim when present.
	BookingID string
	RoomID    string
}

// Ref returns the invoice reference.
func (inv Invoice) Ref() InvoiceRef {
	return InvoiceRef{TenantID: inv.TenantID, InvoiceID: inv.ID}
}

// HasValidDueDate reports whether the due date is set and plausible.
func (inv Invoice) HasValidDueDate() bool {
	return inv.DueDate != nil && !inv.DueDate.IsZero() && inv.DueDate.Year() >= minValidYear
}

// IsOverdueAt reports whether an unpaid invoice is past its own due date.
func (inv Invoice) IsOverdueAt(now time.Time) bool {
	return inv.Status == InvoiceStatusUnpaid && inv.HasValidDueDate() && now.After(*inv.DueDate)
}

// ResourceKey resolves the grouping key of an invoice.
func ResourceKey(inv Invoice) string {
	for _, k := range []string{inv.AssignedResource, inv.Desk, inv.Room, inv.Office} {
		if k != "" {
			return k
		}
	}
	return UnknownResource
}

// InvoiceDraft is an invoice not yet persisted. ID is optional; when set
// it is used as the document key and a second create with the same ID
// fails with ErrDuplicateInvoice.
type InvoiceDraft struct {
	ID               string
	AssignedResource string

	ClientName    string
	CompanyName   string
	Email         string
	ContactNumber string
	ServiceType   string

	Amount     float64
	CusaFee    float64
	ParkingFee float64
	LateFee    float64
	DamageFee  float64

	FeePeriod string
	Status    InvoiceStatus
	StartDate time.Time
	DueDate   time.Time

	BookingID string
	RoomID    string
}

// ToInvoice materializes the draft as an invoice owned by tenantID.
func (d InvoiceDraft) ToInvoice(tenantID, id string, createdAt time.Time) Invoice {
	start, due := d.StartDate, d.DueDate
	return Invoice{
		ID:               id,
		TenantID:         tenantID,
		AssignedResource: d.AssignedResource,
		ClientName:       d.ClientName,
		CompanyName:      d.CompanyName,
		Email:            d.Email,
		ContactNumber:    d.ContactNumber,
		ServiceType:      d.ServiceType,
		Amount:           d.Amount,
		CusaFee:          d.CusaFee,
		ParkingFee:       d.ParkingFee,
		LateFee:          d.LateFee,
		DamageFee:        d.DamageFee,
		FeePeriod:        d.FeePeriod,
		Status:           d.Status,
		StartDate:        &start,
		DueDate:          &due,
		CreatedAt:        createdAt,
		BookingID:        d.BookingID,
		RoomID:           d.RoomID,
	}
}

// InvoiceUpdate holds admin edits to an existing invoice. Nil fields are
// left unchanged.
type InvoiceUpdate struct {
	Amount     *float64
	CusaFee    *float64
	ParkingFee *float64
	FeePeriod  *string
	DueDate    *time.Time
}

// Apply returns inv with the update applied.
func (u InvoiceUpdate) Apply(inv Invoice) Invoice {
	if u.Amount != nil {
		inv.Amount = *u.Amount
	}
	if u.CusaFee != nil {
		inv.CusaFee = *u.CusaFee
	}
	if u.ParkingFee != nil {
		inv.ParkingFee = *u.ParkingFee
	}
	if u.FeePeriod != nil {
		inv.FeePeriod = *u.FeePeriod
	}
	if u.DueDate != nil {
		d := *u.DueDate
		inv.DueDate = &d
	}
	return inv
}

// Payment records settlement of one invoice.
type Payment struct {
	LateFee   float64
	DamageFee float64
	PaidAt    time.Time
}

// Apply returns inv marked paid with the payment's penalty fees.
func (p Payment) Apply(inv Invoice) Invoice {
	paidAt := p.PaidAt
	inv.Status = InvoiceStatusPaid
	inv.LateFee = p.LateFee
	inv.DamageFee = p.DamageFee
	inv.PaidAt = &paidAt
	return inv
}
