package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/coworkbill/app"
	"github.com/artpar/coworkbill/domain/billing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// CheckTrigger runs a recurring check on demand.
type CheckTrigger interface {
	Trigger(ctx context.Context) (app.CheckReport, error)
}

// BillingHandler serves the /api/billing endpoints.
type BillingHandler struct {
	service *app.BillingService
	checker CheckTrigger
	logger  zerolog.Logger
}

// NewBillingHandler creates a billing handler. checker may be nil, in which
// case the manual check endpoint is not mounted.
func NewBillingHandler(service *app.BillingService, checker CheckTrigger, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{service: service, checker: checker, logger: logger}
}

// Routes mounts the billing endpoints on r.
func (h *BillingHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/stats", h.Stats)
	if h.checker != nil {
		r.Post("/check", h.Check)
	}
	r.Get("/{userId}", h.History)
	r.Put("/{userId}/{billId}", h.Update)
	r.Post("/{userId}/{billId}/pay", h.Pay)
	r.Put("/{userId}/{billId}/pay", h.Pay)
}

// List returns one row per tenant and resource.
func (h *BillingHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]billingRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, newBillingRowResponse(row))
	}
	writeSuccess(w, http.StatusOK, out)
}

// Stats returns aggregate billing figures.
func (h *BillingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, statsResponse{
		TotalBills:   stats.TotalBills,
		TotalRevenue: money(stats.TotalRevenue),
		PaidCount:    stats.PaidCount,
		UnpaidAmount: money(stats.UnpaidAmount),
		OverdueCount: stats.OverdueCount,
	})
}

// History returns a tenant's invoices, newest first.
func (h *BillingHandler) History(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.History(r.Context(), trimmed(r, "userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, newInvoiceResponse(inv))
	}
	writeSuccess(w, http.StatusOK, out)
}

// Pay records a payment.
func (h *BillingHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var in app.PaymentInput
	if err := decodeBody(r, &in, true); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.RecordPayment(r.Context(), invoiceRef(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, newInvoiceResponse(inv))
}

// Update edits the recurring fields of an invoice.
func (h *BillingHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in app.UpdateInput
	if err := decodeBody(r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.UpdateBill(r.Context(), invoiceRef(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, newInvoiceResponse(inv))
}

// Create creates the first invoice for a tenant and resource.
func (h *BillingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in app.CreateInput
	if err := decodeBody(r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.CreateBill(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, newInvoiceResponse(inv))
}

// Check runs one recurring check now.
func (h *BillingHandler) Check(w http.ResponseWriter, r *http.Request) {
	report, err := h.checker.Trigger(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, newCheckResponse(report))
}

func invoiceRef(r *http.Request) billing.InvoiceRef {
	return billing.InvoiceRef{
		TenantID:  trimmed(r, "userId"),
		InvoiceID: trimmed(r, "billId"),
	}
}

var errMalformedBody = errors.New("malformed request body")

func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return errMalformedBody
	}
	return nil
}

// fail maps service errors onto HTTP statuses.
func (h *BillingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", billing.ErrStoreUnavailable.Error())
	case errors.Is(err, billing.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "invoice or tenant not found")
	case errors.Is(err, billing.ErrInvalidDueDate), errors.Is(err, billing.ErrInvalidInput), errors.Is(err, errMalformedBody):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, billing.ErrDuplicateInvoice), errors.Is(err, app.ErrCheckInProgress):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("billing request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type billingRowResponse struct {
	UserID           string  `json:"userId"`
	BillID           string  `json:"billId"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone"`
	CompanyName      string  `json:"companyName"`
	ServiceType      string  `json:"serviceType"`
	AssignedResource string  `json:"assignedResource"`
	Amount           float64 `json:"amount"`
	CusaFee          float64 `json:"cusaFee"`
	ParkingFee       float64 `json:"parkingFee"`
	LateFee          float64 `json:"lateFee"`
	DamageFee        float64 `json:"damageFee"`
	FeePeriod        string  `json:"feePeriod"`
	Status           string  `json:"status"`
	DueDate          *string `json:"dueDate"`
	StartDate        *string `json:"startDate"`
	AllBillsPaid     bool    `json:"allBillsPaid"`
}

func newBillingRowResponse(row billing.BillingRow) billingRowResponse {
	return billingRowResponse{
		UserID:           row.TenantID,
		BillID:           row.BillID,
		Name:             row.Name,
		Email:            row.Email,
		Phone:            row.Phone,
		CompanyName:      row.CompanyName,
		ServiceType:      row.ServiceType,
		AssignedResource: row.AssignedResource,
		Amount:           row.Amount,
		CusaFee:          row.CusaFee,
		ParkingFee:       row.ParkingFee,
		LateFee:          row.LateFee,
		DamageFee:        row.DamageFee,
		FeePeriod:        row.FeePeriod,
		Status:           string(row.Status),
		DueDate:          formatTime(row.DueDate),
		StartDate:        formatTime(row.StartDate),
		AllBillsPaid:     row.AllBillsPaid,
	}
}

type invoiceResponse struct {
	ID               string  `json:"id"`
	UserID           string  `json:"userId"`
	AssignedResource string  `json:"assignedResource,omitempty"`
	Desk             string  `json:"desk,omitempty"`
	Room             string  `json:"room,omitempty"`
	Office           string  `json:"office,omitempty"`
	ClientName       string  `json:"clientName"`
	CompanyName      string  `json:"companyName"`
	Email            string  `json:"email"`
	ContactNumber    string  `json:"contactNumber"`
	ServiceType      string  `json:"serviceType"`
	Amount           float64 `json:"amount"`
	CusaFee          float64 `json:"cusaFee"`
	ParkingFee       float64 `json:"parkingFee"`
	LateFee          float64 `json:"lateFee"`
	DamageFee        float64 `json:"damageFee"`
	FeePeriod        string  `json:"feePeriod"`
	Status           string  `json:"status"`
	StartDate        *string `json:"startDate"`
	DueDate          *string `json:"dueDate"`
	CreatedAt        *string `json:"createdAt"`
	PaidAt           *string `json:"paidAt,omitempty"`
	BookingID        string  `json:"bookingId,omitempty"`
	RoomID           string  `json:"roomId,omitempty"`
}

func newInvoiceResponse(inv billing.Invoice) invoiceResponse {
	var created *string
	if !inv.CreatedAt.IsZero() {
		created = formatTime(&inv.CreatedAt)
	}
	return invoiceResponse{
		ID:               inv.ID,
		UserID:           inv.TenantID,
		AssignedResource: inv.AssignedResource,
		Desk:             inv.Desk,
		Room:             inv.Room,
		Office:           inv.Office,
		ClientName:       inv.ClientName,
		CompanyName:      inv.CompanyName,
		Email:            inv.Email,
		ContactNumber:    inv.ContactNumber,
		ServiceType:      inv.ServiceType,
		Amount:           inv.Amount,
		CusaFee:          inv.CusaFee,
		ParkingFee:       inv.ParkingFee,
		LateFee:          inv.LateFee,
		DamageFee:        inv.DamageFee,
		FeePeriod:        inv.FeePeriod,
		Status:           string(inv.Status),
		StartDate:        formatTime(inv.StartDate),
		DueDate:          formatTime(inv.DueDate),
		CreatedAt:        created,
		PaidAt:           formatTime(inv.PaidAt),
		BookingID:        inv.BookingID,
		RoomID:           inv.RoomID,
	}
}

type statsResponse struct {
	TotalBills   int         `json:"totalBills"`
	TotalRevenue json.Number `json:"totalRevenue"`
	PaidCount    int         `json:"paidCount"`
	UnpaidAmount json.Number `json:"unpaidAmount"`
	OverdueCount int         `json:"overdueCount"`
}

type checkResponse struct {
	StartedAt         string         `json:"startedAt"`
	DurationMs        int64          `json:"durationMs"`
	LockSkipped       bool           `json:"lockSkipped"`
	TenantsScanned    int            `json:"tenantsScanned"`
	TenantsFailed     int            `json:"tenantsFailed"`
	Groups            int            `json:"groups"`
	Skipped           map[string]int `json:"skipped"`
	MarkedOverdue     int            `json:"markedOverdue"`
	Generated         int            `json:"generated"`
	DuplicatesAvoided int            `json:"duplicatesAvoided"`
}

func newCheckResponse(r app.CheckReport) checkResponse {
	skipped := make(map[string]int, len(r.Skipped))
	for reason, n := range r.Skipped {
		skipped[string(reason)] = n
	}
	return checkResponse{
		StartedAt:         r.StartedAt.UTC().Format(time.RFC3339),
		DurationMs:        r.Duration.Milliseconds(),
		LockSkipped:       r.LockSkipped,
		TenantsScanned:    r.TenantsScanned,
		TenantsFailed:     r.TenantsFailed,
		Groups:            r.Groups,
		Skipped:           skipped,
		MarkedOverdue:     r.MarkedOverdue,
		Generated:         r.Generated,
		DuplicatesAvoided: r.DuplicatesAvoided,
	}
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// trimmed returns the URL parameter without surrounding whitespace.
func trimmed(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}
