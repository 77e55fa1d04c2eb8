package firestore

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/coworkbill/domain/billing"
)

func TestDecodeInvoice_MixedTypes(t *testing.T) {
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	data := map[string]interface{}{
		"desk":        "D4",
		"amount":      int64(300),
		"cusaFee":     "25.5",
		"parkingFee":  10.0,
		"feePeriod":   "Monthly",
		"status":      "Unpaid",
		"startDate":   "2024-01-01",
		"dueDate":     time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		"createdAt":   created,
		"bookingId":   "bk_1",
		"serviceType": "Hot Desk",
	}

	inv := decodeInvoice("T", "b1", data)

	assert.Equal(t, "D4", billing.ResourceKey(inv))
	assert.Equal(t, 300.0, inv.Amount)
	assert.Equal(t, 25.5, inv.CusaFee)
	assert.Equal(t, 10.0, inv.ParkingFee)
	assert.Equal(t, billing.InvoiceStatusUnpaid, inv.Status)
	require.NotNil(t, inv.StartDate)
	assert.True(t, inv.StartDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, inv.DueDate)
	assert.True(t, inv.HasValidDueDate())
	assert.True(t, inv.CreatedAt.Equal(created))
	assert.Nil(t, inv.PaidAt)
	assert.Equal(t, billing.InvoiceRef{TenantID: "T", InvoiceID: "b1"}, inv.Ref())
}

func TestDecodeInvoice_UnparseableDueDateIsInvalid(t *testing.T) {
	inv := decodeInvoice("T", "b1", map[string]interface{}{
		"feePeriod": "Monthly",
		"dueDate":   "next tuesday",
	})

	require.NotNil(t, inv.DueDate)
	group := billing.ResourceGroup{Resource: "Unknown", Invoices: []billing.Invoice{inv}}
	assert.Equal(t, billing.SkipInvalidDueDate, billing.Detect(group, time.Now()))
}

func TestDecodeInvoice_MissingDueDate(t *testing.T) {
	inv := decodeInvoice("T", "b1", map[string]interface{}{"feePeriod": "Monthly", "dueDate": ""})

	assert.Nil(t, inv.DueDate)
}

func TestDecodeInvoice_UnknownStatusIsKept(t *testing.T) {
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	now := due.Add(48 * time.Hour)

	tests := []struct {
		name   string
		status interface{}
		want   billing.InvoiceStatus
	}{
		{"missing", nil, ""},
		{"empty", "", ""},
		{"cancelled", "cancelled", "cancelled"},
		{"pending", " Pending ", "Pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := decodeInvoice("T", "b1", map[string]interface{}{
				"feePeriod": "Monthly",
				"status":    tt.status,
				"dueDate":   due,
			})

			assert.Equal(t, tt.want, inv.Status)
			assert.False(t, inv.IsOverdueAt(now), "status %q must not become overdue", inv.Status)

			group := billing.ResourceGroup{Resource: "Unknown", Invoices: []billing.Invoice{inv}}
			assert.Empty(t, billing.OverdueCandidates(group, now))
		})
	}
}

func TestInvoiceUpdates_KeepsMissingStatus(t *testing.T) {
	for _, u := range invoiceUpdates(billing.Invoice{Amount: 1}) {
		assert.NotEqual(t, fieldStatus, u.Path)
	}
}

func TestEncodeDraft(t *testing.T) {
	d := billing.InvoiceDraft{
		AssignedResource: "A12",
		Amount:           300,
		FeePeriod:        billing.PeriodMonthly,
		Status:           billing.InvoiceStatusUnpaid,
		StartDate:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DueDate:          time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}

	data := encodeDraft(d)

	assert.Equal(t, "A12", data["assignedResource"])
	assert.Equal(t, "unpaid", data["status"])
	assert.Equal(t, 0.0, data["lateFee"])
	assert.Equal(t, firestore.ServerTimestamp, data["createdAt"])
	assert.NotContains(t, data, "bookingId")

	round := decodeInvoice("T", "x", data)
	assert.Equal(t, d.AssignedResource, round.AssignedResource)
	assert.True(t, round.DueDate.Equal(d.DueDate))
}

func TestDecodeTenant_FieldFallbacks(t *testing.T) {
	tenant := decodeTenant("T", map[string]interface{}{
		"fullName": "Ada Lovelace",
		"company":  "Engines",
		"phone":    "+1 555",
	})

	assert.Equal(t, "Ada Lovelace", tenant.Name)
	assert.Equal(t, "Engines", tenant.CompanyName)
	assert.Equal(t, "+1 555", tenant.ContactNumber)
}

func TestInvoiceUpdates_IncludesPaidAt(t *testing.T) {
	paid := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	inv := billing.Payment{LateFee: 5, PaidAt: paid}.Apply(billing.Invoice{})

	paths := map[string]interface{}{}
	for _, u := range invoiceUpdates(inv) {
		paths[u.Path] = u.Value
	}

	assert.Equal(t, "paid", paths["status"])
	assert.Equal(t, 5.0, paths["lateFee"])
	assert.Equal(t, paid, paths["paidAt"])
	assert.NotContains(t, paths, "dueDate")
}

func TestNilClientIsUnavailable(t *testing.T) {
	s := NewBillStore(nil, Config{})

	_, err := s.ListTenants(t.Context())
	assert.ErrorIs(t, err, billing.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(t.Context()), billing.ErrStoreUnavailable)
	assert.NoError(t, s.Close())
}
