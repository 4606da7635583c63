package order

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrForbidden         = errors.New("forbidden")
	ErrNotCancellable    = errors.New("order is not cancellable in its current status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrVendorNotInOrder  = errors.New("vendor has no sub-order in this order")
	ErrPaymentNotPending = errors.New("payment is not pending")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed checkout input (address fields,
// payment method, empty cart). Per-item catalog failures are reported
// separately by the cart validator.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid request:")
	for _, f := range e.Fields {
		fmt.Fprintf(&sb, " %s: %s;", f.Field, f.Message)
	}
	return sb.String()
}
