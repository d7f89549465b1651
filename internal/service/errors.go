package service

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAmountMismatch    = errors.New("amount does not match order total")
	ErrOrderNotPayable   = errors.New("order payment is already settled")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ValidationError reports the first missing or malformed request field.
// Validation fails fast: nothing is persisted when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("missing required field: %s", e.Field)
}
