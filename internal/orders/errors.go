package orders

import (
	"fmt"
	"sort"
	"strings"

	"github.com/safar/storefront-api/internal/models"
)

// ReservationFailureMessage is shown to a customer whose payment went through but whose stock
// could not be secured.
const ReservationFailureMessage = "Your payment was received but we could not reserve all items. Please contact support with your order number."

// ValidationError maps field names to what is wrong with them.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

const (
	StockReasonNotFound     = "not_found"
	StockReasonUnavailable  = "unavailable"
	StockReasonInsufficient = "insufficient_stock"
)

type StockUnavailableError struct {
	ProductID int64
	SKU       string
	Requested int
	Available int
	Reason    string
}

func (e *StockUnavailableError) Error() string {
	switch e.Reason {
	case StockReasonNotFound:
		return fmt.Sprintf("product %d does not exist", e.ProductID)
	case StockReasonUnavailable:
		return fmt.Sprintf("product %s is not available", e.SKU)
	default:
		return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
	}
}

type InvalidStateTransitionError struct {
	OrderID int64
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("order %d cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// ReservationFailureError reports that the order was paid but left in payment_pending because
// at least one item could not be held. Err is set when the coordinator itself failed.
type ReservationFailureError struct {
	OrderID     int64
	OrderNumber string
	Failed      []models.Reservation
	Err         error
}

func (e *ReservationFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reservation for order %s failed: %v", e.OrderNumber, e.Err)
	}
	return fmt.Sprintf("reservation for order %s failed for %d item(s)", e.OrderNumber, len(e.Failed))
}

func (e *ReservationFailureError) Unwrap() error { return e.Err }

func (e *ReservationFailureError) UserMessage() string { return ReservationFailureMessage }
