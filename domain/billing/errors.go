package billing

import "errors"

var (
	// ErrStoreUnavailable is returned when the persistent store is not
	// initialized or cannot be reached.
	ErrStoreUnavailable = errors.New("billing store not connected")

	ErrNotFound = errors.New("not found")

	// ErrDuplicateInvoice is returned when an invoice with the same key
	// already exists.
	ErrDuplicateInvoice = errors.New("invoice already exists")

	ErrInvalidDueDate = errors.New("invalid due date")
	ErrInvalidInput   = errors.New("invalid input")
)
