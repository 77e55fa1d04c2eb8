package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/coworkbill/domain/billing"
	"github.com/artpar/coworkbill/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BillingService backs the administrative billing endpoints.
type BillingService struct {
	store    ports.BillStore
	calendar func() *billing.Calendar
	clock    ports.Clock
	ids      ports.IDGenerator
	logger   zerolog.Logger
}

// BillingServiceConfig contains configuration for BillingService.
type BillingServiceConfig struct {
	Store  ports.BillStore
	Clock  ports.Clock
	IDs    ports.IDGenerator
	Logger zerolog.Logger

	// Calendar returns the active period calendar. Nil uses the defaults.
	Calendar func() *billing.Calendar
}

// NewBillingService creates a new billing service.
func NewBillingService(cfg BillingServiceConfig) *BillingService {
	cal := cfg.Calendar
	if cal == nil {
		def := billing.DefaultCalendar()
		cal = func() *billing.Calendar { return def }
	}
	return &BillingService{
		store:    cfg.Store,
		calendar: cal,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		logger:   cfg.Logger,
	}
}

// Ping checks the backing store.
func (s *BillingService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// List returns one row per tenant and resource.
func (s *BillingService) List(ctx context.Context) ([]billing.BillingRow, error) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	perTenant := make([][]billing.BillingRow, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, t := range tenants {
		g.Go(func() error {
			invoices, err := s.store.ListInvoices(gctx, t.ID)
			if err != nil {
				return fmt.Errorf("list invoices for %s: %w", t.ID, err)
			}
			perTenant[i] = billing.Summarize(t, invoices)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]billing.BillingRow, 0, len(tenants))
	for _, r := range perTenant {
		rows = append(rows, r...)
	}
	return rows, nil
}

// Stats aggregates every invoice of every tenant.
func (s *BillingService) Stats(ctx context.Context) (billing.Stats, error) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return billing.Stats{}, fmt.Errorf("list tenants: %w", err)
	}

	var all []billing.Invoice
	for _, t := range tenants {
		invoices, err := s.store.ListInvoices(ctx, t.ID)
		if err != nil {
			return billing.Stats{}, fmt.Errorf("list invoices for %s: %w", t.ID, err)
		}
		all = append(all, invoices...)
	}
	return billing.ComputeStats(all), nil
}

// History returns a tenant's invoices, newest first.
func (s *BillingService) History(ctx context.Context, tenantID string) ([]billing.Invoice, error) {
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.ListInvoices(ctx, tenantID)
}

// PaymentInput is the body of a record-payment request.
type PaymentInput struct {
	LateFee   *float64 `json:"lateFee"`
	DamageFee *float64 `json:"damageFee"`
}

// RecordPayment marks an invoice paid with optional penalty fees.
func (s *BillingService) RecordPayment(ctx context.Context, ref billing.InvoiceRef, in PaymentInput) (billing.Invoice, error) {
	p := billing.Payment{PaidAt: s.clock.Now()}
	if in.LateFee != nil {
		if *in.LateFee < 0 {
			return billing.Invoice{}, fmt.Errorf("%w: lateFee must not be negative", billing.ErrInvalidInput)
		}
		p.LateFee = *in.LateFee
	}
	if in.DamageFee != nil {
		if *in.DamageFee < 0 {
			return billing.Invoice{}, fmt.Errorf("%w: damageFee must not be negative", billing.ErrInvalidInput)
		}
		p.DamageFee = *in.DamageFee
	}

	inv, err := s.store.RecordPayment(ctx, ref, p)
	if err != nil {
		return billing.Invoice{}, err
	}
	s.logger.Info().
		Str("tenant_id", ref.TenantID).
		Str("invoice_id", ref.InvoiceID).
		Float64("late_fee", p.LateFee).
		Float64("damage_fee", p.DamageFee).
		Msg("payment recorded")
	return inv, nil
}

// UpdateInput is the body of an update-bill request.
type UpdateInput struct {
	Amount     *float64 `json:"amount"`
	CusaFee    *float64 `json:"cusaFee"`
	ParkingFee *float64 `json:"parkingFee"`
	FeePeriod  *string  `json:"feePeriod"`
	DueDate    *string  `json:"dueDate"`
}

// UpdateBill edits the recurring fields of an invoice.
func (s *BillingService) UpdateBill(ctx context.Context, ref billing.InvoiceRef, in UpdateInput) (billing.Invoice, error) {
	upd := billing.InvoiceUpdate{
		Amount:     in.Amount,
		CusaFee:    in.CusaFee,
		ParkingFee: in.ParkingFee,
	}
	if err := nonNegative(map[string]*float64{"amount": in.Amount, "cusaFee": in.CusaFee, "parkingFee": in.ParkingFee}); err != nil {
		return billing.Invoice{}, err
	}
	if in.FeePeriod != nil {
		name, err := s.periodName(*in.FeePeriod)
		if err != nil {
			return billing.Invoice{}, err
		}
		upd.FeePeriod = &name
	}
	if in.DueDate != nil {
		due, err := ParseDate(*in.DueDate)
		if err != nil {
			return billing.Invoice{}, err
		}
		current, err := s.store.GetInvoice(ctx, ref)
		if err != nil {
			return billing.Invoice{}, err
		}
		if current.StartDate != nil && !due.After(*current.StartDate) {
			return billing.Invoice{}, fmt.Errorf("%w: dueDate must be after startDate", billing.ErrInvalidInput)
		}
		upd.DueDate = &due
	}

	inv, err := s.store.UpdateInvoice(ctx, ref, upd)
	if err != nil {
		return billing.Invoice{}, err
	}
	s.logger.Info().Str("tenant_id", ref.TenantID).Str("invoice_id", ref.InvoiceID).Msg("invoice updated")
	return inv, nil
}

// CreateInput is the body of a create-bill request.
type CreateInput struct {
	TenantID         string  `json:"userId"`
	AssignedResource string  `json:"assignedResource"`
	ServiceType      string  `json:"serviceType"`
	Amount           float64 `json:"amount"`
	CusaFee          float64 `json:"cusaFee"`
	ParkingFee       float64 `json:"parkingFee"`
	FeePeriod        string  `json:"feePeriod"`
	StartDate        string  `json:"startDate"`
	DueDate          string  `json:"dueDate"`
	BookingID        string  `json:"bookingId"`
	RoomID           string  `json:"roomId"`
}

// CreateBill creates the first invoice for a tenant and resource.
func (s *BillingService) CreateBill(ctx context.Context, in CreateInput) (billing.Invoice, error) {
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.AssignedResource = strings.TrimSpace(in.AssignedResource)
	if in.TenantID == "" || in.AssignedResource == "" {
		return billing.Invoice{}, fmt.Errorf("%w: userId and assignedResource are required", billing.ErrInvalidInput)
	}
	if err := nonNegative(map[string]*float64{"amount": &in.Amount, "cusaFee": &in.CusaFee, "parkingFee": &in.ParkingFee}); err != nil {
		return billing.Invoice{}, err
	}

	period := billing.PeriodMonthly
	if in.FeePeriod != "" {
		name, err := s.periodName(in.FeePeriod)
		if err != nil {
			return billing.Invoice{}, err
		}
		period = name
	}

	start := s.clock.Now()
	if in.StartDate != "" {
		d, err := ParseDate(in.StartDate)
		if err != nil {
			return billing.Invoice{}, fmt.Errorf("%w: startDate", billing.ErrInvalidInput)
		}
		start = d
	}
	due := start.Add(s.calendar().Lookup(period).Length)
	if in.DueDate != "" {
		d, err := ParseDate(in.DueDate)
		if err != nil {
			return billing.Invoice{}, err
		}
		due = d
	}
	if !due.After(start) {
		return billing.Invoice{}, fmt.Errorf("%w: dueDate must be after startDate", billing.ErrInvalidInput)
	}

	tenant, err := s.store.GetTenant(ctx, in.TenantID)
	if err != nil {
		return billing.Invoice{}, err
	}

	draft := billing.InvoiceDraft{
		ID:               s.ids.New(),
		AssignedResource: in.AssignedResource,
		ClientName:       tenant.Name,
		CompanyName:      tenant.CompanyName,
		Email:            tenant.Email,
		ContactNumber:    tenant.ContactNumber,
		ServiceType:      in.ServiceType,
		Amount:           in.Amount,
		CusaFee:          in.CusaFee,
		ParkingFee:       in.ParkingFee,
		FeePeriod:        period,
		Status:           billing.InvoiceStatusUnpaid,
		StartDate:        start,
		DueDate:          due,
		BookingID:        in.BookingID,
		RoomID:           in.RoomID,
	}

	ref, err := s.store.CreateInvoice(ctx, tenant.ID, draft)
	if err != nil {
		return billing.Invoice{}, err
	}
	s.logger.Info().
		Str("tenant_id", ref.TenantID).
		Str("invoice_id", ref.InvoiceID).
		Str("resource", draft.AssignedResource).
		Msg("invoice created")
	return s.store.GetInvoice(ctx, ref)
}

func (s *BillingService) periodName(name string) (string, error) {
	cal := s.calendar()
	if !cal.Known(name) {
		return "", fmt.Errorf("%w: unknown feePeriod %q (known: %s)", billing.ErrInvalidInput, name, strings.Join(cal.Names(), ", "))
	}
	return cal.Lookup(name).Name, nil
}

func nonNegative(fields map[string]*float64) error {
	for name, v := range fields {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s must not be negative", billing.ErrInvalidInput, name)
		}
	}
	return nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate accepts RFC 3339 timestamps and plain dates, returned in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", billing.ErrInvalidDueDate, s)
}
