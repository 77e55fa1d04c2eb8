package firestore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/artpar/coworkbill/domain/billing"
)

// Document field names, shared with the admin UI.
const (
	fieldAssignedResource = "assignedResource"
	fieldDesk             = "desk"
	fieldRoom             = "room"
	fieldOffice           = "office"
	fieldClientName       = "clientName"
	fieldCompanyName      = "companyName"
	fieldEmail            = "email"
	fieldContactNumber    = "contactNumber"
	fieldServiceType      = "serviceType"
	fieldAmount           = "amount"
	fieldCusaFee          = "cusaFee"
	fieldParkingFee       = "parkingFee"
	fieldLateFee          = "lateFee"
	fieldDamageFee        = "damageFee"
	fieldFeePeriod        = "feePeriod"
	fieldStatus           = "status"
	fieldStartDate        = "startDate"
	fieldDueDate          = "dueDate"
	fieldCreatedAt        = "createdAt"
	fieldUpdatedAt        = "updatedAt"
	fieldPaidAt           = "paidAt"
	fieldBookingID        = "bookingId"
	fieldRoomID           = "roomId"
)

// unparseableDate stands in for date fields that are present but cannot be
// read. It is earlier than any plausible due date, so such groups are
// skipped as invalid rather than as unconfigured.
var unparseableDate = time.Unix(0, 0).UTC()

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func encodeDraft(d billing.InvoiceDraft) map[string]interface{} {
	data := map[string]interface{}{
		fieldAssignedResource: d.AssignedResource,
		fieldClientName:       d.ClientName,
		fieldCompanyName:      d.CompanyName,
		fieldEmail:            d.Email,
		fieldContactNumber:    d.ContactNumber,
		fieldServiceType:      d.ServiceType,
		fieldAmount:           d.Amount,
		fieldCusaFee:          d.CusaFee,
		fieldParkingFee:       d.ParkingFee,
		fieldLateFee:          d.LateFee,
		fieldDamageFee:        d.DamageFee,
		fieldFeePeriod:        d.FeePeriod,
		fieldStatus:           string(d.Status),
		fieldStartDate:        d.StartDate.UTC(),
		fieldDueDate:          d.DueDate.UTC(),
		fieldCreatedAt:        firestore.ServerTimestamp,
	}
	if d.BookingID != "" {
		data[fieldBookingID] = d.BookingID
	}
	if d.RoomID != "" {
		data[fieldRoomID] = d.RoomID
	}
	return data
}

func decodeInvoice(tenantID, id string, data map[string]interface{}) billing.Invoice {
	return billing.Invoice{
		ID:               id,
		TenantID:         tenantID,
		AssignedResource: str(data[fieldAssignedResource]),
		Desk:             str(data[fieldDesk]),
		Room:             str(data[fieldRoom]),
		Office:           str(data[fieldOffice]),
		ClientName:       str(data[fieldClientName]),
		CompanyName:      str(data[fieldCompanyName]),
		Email:            str(data[fieldEmail]),
		ContactNumber:    str(data[fieldContactNumber]),
		ServiceType:      str(data[fieldServiceType]),
		Amount:           num(data[fieldAmount]),
		CusaFee:          num(data[fieldCusaFee]),
		ParkingFee:       num(data[fieldParkingFee]),
		LateFee:          num(data[fieldLateFee]),
		DamageFee:        num(data[fieldDamageFee]),
		FeePeriod:        str(data[fieldFeePeriod]),
		Status:           decodeStatus(data[fieldStatus]),
		StartDate:        date(data[fieldStartDate]),
		DueDate:          date(data[fieldDueDate]),
		CreatedAt:        deref(date(data[fieldCreatedAt])),
		PaidAt:           date(data[fieldPaidAt]),
		BookingID:        str(data[fieldBookingID]),
		RoomID:           str(data[fieldRoomID]),
	}
}

func decodeTenant(id string, data map[string]interface{}) billing.Tenant {
	return billing.Tenant{
		ID:            id,
		Name:          firstString(data, "name", "fullName", "displayName"),
		CompanyName:   firstString(data, "companyName", "company"),
		Email:         firstString(data, "email"),
		ContactNumber: firstString(data, "contactNumber", "phone", "phoneNumber"),
	}
}

func encodeTenant(t billing.Tenant) map[string]interface{} {
	return map[string]interface{}{
		"name":          t.Name,
		"companyName":   t.CompanyName,
		"email":         t.Email,
		"contactNumber": t.ContactNumber,
		fieldUpdatedAt:  firestore.ServerTimestamp,
	}
}

// invoiceUpdates lists the writes that persist the editable fields of inv.
func invoiceUpdates(inv billing.Invoice) []firestore.Update {
	updates := []firestore.Update{
		{Path: fieldAmount, Value: inv.Amount},
		{Path: fieldCusaFee, Value: inv.CusaFee},
		{Path: fieldParkingFee, Value: inv.ParkingFee},
		{Path: fieldLateFee, Value: inv.LateFee},
		{Path: fieldDamageFee, Value: inv.DamageFee},
		{Path: fieldFeePeriod, Value: inv.FeePeriod},
		{Path: fieldUpdatedAt, Value: firestore.ServerTimestamp},
	}
	if inv.Status != "" {
		updates = append(updates, firestore.Update{Path: fieldStatus, Value: string(inv.Status)})
	}
	if inv.DueDate != nil {
		updates = append(updates, firestore.Update{Path: fieldDueDate, Value: inv.DueDate.UTC()})
	}
	if inv.PaidAt != nil {
		updates = append(updates, firestore.Update{Path: fieldPaidAt, Value: inv.PaidAt.UTC()})
	}
	return updates
}

// decodeStatus normalizes the known statuses. Anything else is kept as
// written, so the engine never treats it as unpaid.
func decodeStatus(v interface{}) billing.InvoiceStatus {
	raw := strings.TrimSpace(str(v))
	if s := billing.InvoiceStatus(strings.ToLower(raw)); s.Valid() {
		return s
	}
	return billing.InvoiceStatus(raw)
}

func str(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func num(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func date(v interface{}) *time.Time {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		t := x.UTC()
		return &t
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	t := unparseableDate
	return &t
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func firstString(data map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := str(data[k]); s != "" {
			return s
		}
	}
	return ""
}
