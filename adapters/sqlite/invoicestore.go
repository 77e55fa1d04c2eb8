package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/coworkbill/domain/billing"
	"github.com/artpar/coworkbill/ports"
)

// BillStore implements ports.BillStore using SQLite.
type BillStore struct {
	db    *DB
	clock ports.Clock
	ids   ports.IDGenerator
}

// NewBillStore creates a new SQLite bill store.
func NewBillStore(db *DB, clock ports.Clock, ids ports.IDGenerator) *BillStore {
	return &BillStore{db: db, clock: clock, ids: ids}
}

const invoiceColumns = `
	tenant_id, id, assigned_resource, desk, room, office,
	client_name, company_name, email, contact_number, service_type,
	amount, cusa_fee, parking_fee, late_fee, damage_fee,
	fee_period, status, start_date, due_date, paid_at,
	booking_id, room_id, created_at`

// Ping checks the database connection.
func (s *BillStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// CreateInvoice stores a new invoice. A draft ID that already exists for
// the tenant yields billing.ErrDuplicateInvoice.
func (s *BillStore) CreateInvoice(ctx context.Context, tenantID string, draft billing.InvoiceDraft) (billing.InvoiceRef, error) {
	if _, err := s.GetTenant(ctx, tenantID); err != nil {
		return billing.InvoiceRef{}, err
	}

	id := draft.ID
	if id == "" {
		id = s.ids.New()
	}
	inv := draft.ToInvoice(tenantID, id, s.clock.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.TenantID, inv.ID, inv.AssignedResource, inv.Desk, inv.Room, inv.Office,
		inv.ClientName, inv.CompanyName, inv.Email, inv.ContactNumber, inv.ServiceType,
		inv.Amount, inv.CusaFee, inv.ParkingFee, inv.LateFee, inv.DamageFee,
		inv.FeePeriod, string(inv.Status), nullTime(inv.StartDate), nullTime(inv.DueDate), nullTime(inv.PaidAt),
		inv.BookingID, inv.RoomID, inv.CreatedAt,
	)
	if isUniqueConstraintError(err) {
		return billing.InvoiceRef{}, billing.ErrDuplicateInvoice
	}
	if err != nil {
		return billing.InvoiceRef{}, fmt.Errorf("insert invoice: %w", err)
	}
	return inv.Ref(), nil
}

// Put inserts or replaces a fully formed invoice. Used to import history.
func (s *BillStore) Put(ctx context.Context, inv billing.Invoice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.TenantID, inv.ID, inv.AssignedResource, inv.Desk, inv.Room, inv.Office,
		inv.ClientName, inv.CompanyName, inv.Email, inv.ContactNumber, inv.ServiceType,
		inv.Amount, inv.CusaFee, inv.ParkingFee, inv.LateFee, inv.DamageFee,
		inv.FeePeriod, string(inv.Status), nullTime(inv.StartDate), nullTime(inv.DueDate), nullTime(inv.PaidAt),
		inv.BookingID, inv.RoomID, inv.CreatedAt,
	)
	return err
}

// ListInvoices returns a tenant's invoices, newest first.
func (s *BillStore) ListInvoices(ctx context.Context, tenantID string) ([]billing.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE tenant_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// GetInvoice retrieves one invoice.
func (s *BillStore) GetInvoice(ctx context.Context, ref billing.InvoiceRef) (billing.Invoice, error) {
	return getInvoice(ctx, s.db, ref)
}

// MarkOverdue moves an unpaid invoice to overdue. Paid and already
// overdue invoices are left unchanged.
func (s *BillStore) MarkOverdue(ctx context.Context, ref billing.InvoiceRef) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?
		WHERE tenant_id = ? AND id = ? AND status = ?
	`, string(billing.InvoiceStatusOverdue), ref.TenantID, ref.InvoiceID, string(billing.InvoiceStatusUnpaid))
	if err != nil {
		return fmt.Errorf("mark overdue: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or not unpaid; only the former is an error.
		_, err := s.GetInvoice(ctx, ref)
		return err
	}
	return nil
}

// UpdateInvoice applies admin edits.
func (s *BillStore) UpdateInvoice(ctx context.Context, ref billing.InvoiceRef, upd billing.InvoiceUpdate) (billing.Invoice, error) {
	return s.modify(ctx, ref, upd.Apply)
}

// RecordPayment marks an invoice paid.
func (s *BillStore) RecordPayment(ctx context.Context, ref billing.InvoiceRef, p billing.Payment) (billing.Invoice, error) {
	return s.modify(ctx, ref, p.Apply)
}

func (s *BillStore) modify(ctx context.Context, ref billing.InvoiceRef, fn func(billing.Invoice) billing.Invoice) (billing.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return billing.Invoice{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv, err := getInvoice(ctx, tx, ref)
	if err != nil {
		return billing.Invoice{}, err
	}
	inv = fn(inv)

	_, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET amount = ?, cusa_fee = ?, parking_fee = ?, late_fee = ?, damage_fee = ?,
		    fee_period = ?, status = ?, due_date = ?, paid_at = ?
		WHERE tenant_id = ? AND id = ?
	`,
		inv.Amount, inv.CusaFee, inv.ParkingFee, inv.LateFee, inv.DamageFee,
		inv.FeePeriod, string(inv.Status), nullTime(inv.DueDate), nullTime(inv.PaidAt),
		ref.TenantID, ref.InvoiceID,
	)
	if err != nil {
		return billing.Invoice{}, fmt.Errorf("update invoice: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return billing.Invoice{}, fmt.Errorf("commit: %w", err)
	}
	return inv, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getInvoice(ctx context.Context, q queryer, ref billing.InvoiceRef) (billing.Invoice, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE tenant_id = ? AND id = ?
	`, ref.TenantID, ref.InvoiceID)
	if err != nil {
		return billing.Invoice{}, fmt.Errorf("query invoice: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return billing.Invoice{}, err
		}
		return billing.Invoice{}, ErrNotFound
	}
	return scanInvoice(rows)
}

func scanInvoice(rows *sql.Rows) (billing.Invoice, error) {
	var inv billing.Invoice
	var status string
	var startDate, dueDate, paidAt sql.NullTime

	err := rows.Scan(
		&inv.TenantID, &inv.ID, &inv.AssignedResource, &inv.Desk, &inv.Room, &inv.Office,
		&inv.ClientName, &inv.CompanyName, &inv.Email, &inv.ContactNumber, &inv.ServiceType,
		&inv.Amount, &inv.CusaFee, &inv.ParkingFee, &inv.LateFee, &inv.DamageFee,
		&inv.FeePeriod, &status, &startDate, &dueDate, &paidAt,
		&inv.BookingID, &inv.RoomID, &inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Invoice{}, ErrNotFound
	}
	if err != nil {
		return billing.Invoice{}, fmt.Errorf("scan invoice: %w", err)
	}

	inv.Status = billing.InvoiceStatus(status)
	inv.StartDate = timePtr(startDate)
	inv.DueDate = timePtr(dueDate)
	inv.PaidAt = timePtr(paidAt)
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Ensure interface compliance.
var _ ports.BillStore = (*BillStore)(nil)
