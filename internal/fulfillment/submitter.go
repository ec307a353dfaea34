// Package fulfillment turns fully reserved orders into vendor sales orders.
package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/events"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/orders"
	"github.com/safar/storefront-api/internal/store"
	"github.com/safar/storefront-api/internal/vendor"
)

var ErrNoReservations = errors.New("order has no reserved items")

var errAlreadyClaimed = errors.New("order claimed elsewhere")

type SalesOrderCreator interface {
	CreateSalesOrder(ctx context.Context, order vendor.SalesOrder) (string, error)
}

type ProcessedOrder struct {
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	VendorOrderID string `json:"vendor_order_id"`
}

type OrderError struct {
	OrderNumber string `json:"order_number"`
	Message     string `json:"message"`
}

type Result struct {
	OrdersProcessed int              `json:"orders_processed"`
	ProcessedOrders []ProcessedOrder `json:"processed_orders"`
	Errors          []OrderError     `json:"errors"`
}

type Submitter struct {
	db        *sql.DB
	vendor    SalesOrderCreator
	publisher events.Publisher
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

func NewSubmitter(db *sql.DB, v SalesOrderCreator, publisher events.Publisher, log zerolog.Logger, m *metrics.Metrics) *Submitter {
	return &Submitter{
		db:        db,
		vendor:    v,
		publisher: publisher,
		log:       log.With().Str("component", "fulfillment").Logger(),
		metrics:   m,
	}
}

// CreateVendorSalesOrder submits every reserved order whose reservations are all reserved.
// A failing order is recorded in Result.Errors and the batch carries on; the returned error is
// only set when the eligible orders cannot be listed.
func (s *Submitter) CreateVendorSalesOrder(ctx context.Context) (*Result, error) {
	eligible, err := store.ListOrdersReadyForVendor(ctx, s.db)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ProcessedOrders: []ProcessedOrder{},
		Errors:          []OrderError{},
	}

	for i := range eligible {
		order := &eligible[i]

		processed, err := s.submit(ctx, order)
		if errors.Is(err, errAlreadyClaimed) {
			s.log.Debug().Str("order_number", order.OrderNumber).Msg("order claimed by another run, skipped")
			continue
		}
		if err != nil {
			s.metrics.SalesOrdersSubmitted.WithLabelValues("failed").Inc()
			s.log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("vendor sales order failed")
			result.Errors = append(result.Errors, OrderError{OrderNumber: order.OrderNumber, Message: err.Error()})
			continue
		}

		s.metrics.SalesOrdersSubmitted.WithLabelValues("submitted").Inc()
		result.ProcessedOrders = append(result.ProcessedOrders, *processed)
	}

	result.OrdersProcessed = len(result.ProcessedOrders)

	s.log.Info().
		Int("eligible", len(eligible)).
		Int("processed", result.OrdersProcessed).
		Int("failed", len(result.Errors)).
		Msg("vendor sales order run finished")

	return result, nil
}

// submit claims the order before calling the vendor and re-reads it under the claim. An order
// that is locked, or was submitted or changed since it was listed, yields errAlreadyClaimed.
func (s *Submitter) submit(ctx context.Context, listed *models.Order) (*ProcessedOrder, error) {
	release, ok, err := store.TryLockOrder(ctx, s.db, listed.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errAlreadyClaimed
	}
	defer release()

	order, err := store.GetOrder(ctx, s.db, listed.ID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusReserved || order.VendorOrderID != "" {
		return nil, errAlreadyClaimed
	}

	payload, err := s.buildSalesOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	vendorOrderID, err := s.vendor.CreateSalesOrder(ctx, payload)
	if err != nil {
		return nil, err
	}

	log := s.log.With().Str("order_number", order.OrderNumber).Str("vendor_order_id", vendorOrderID).Logger()

	var updated *models.Order
	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		locked, err := store.LockOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		if !orders.CanTransition(locked.Status, models.OrderStatusProcessing) {
			return &orders.InvalidStateTransitionError{OrderID: locked.ID, From: locked.Status, To: models.OrderStatusProcessing}
		}

		locked.Status = models.OrderStatusProcessing
		locked.VendorOrderID = vendorOrderID
		if err := store.UpdateOrderState(ctx, tx, locked); err != nil {
			return err
		}

		if _, err := store.MarkOrderReservationsOrdered(ctx, tx, locked.ID); err != nil {
			return err
		}

		updated = locked
		return nil
	})
	if err != nil {
		// The vendor already accepted the order; the local record has to be fixed by hand.
		log.Error().Err(err).Msg("vendor order created but local bookkeeping failed")
		return nil, fmt.Errorf("record vendor order %s: %w", vendorOrderID, err)
	}

	s.metrics.OrderTransitions.WithLabelValues(string(models.OrderStatusProcessing)).Inc()
	log.Info().Msg("vendor sales order created")

	if err := s.publisher.Publish(ctx, events.TypeOrderStatusChanged, updated.OrderNumber, events.OrderStatusChangedPayload{
		OrderID:       updated.ID,
		OrderNumber:   updated.OrderNumber,
		From:          string(models.OrderStatusReserved),
		To:            string(updated.Status),
		PaymentStatus: string(updated.PaymentStatus),
		VendorOrderID: vendorOrderID,
	}); err != nil {
		log.Warn().Err(err).Msg("publish event")
	}

	return &ProcessedOrder{OrderID: updated.ID, OrderNumber: updated.OrderNumber, VendorOrderID: vendorOrderID}, nil
}

func (s *Submitter) buildSalesOrder(ctx context.Context, order *models.Order) (vendor.SalesOrder, error) {
	reservations, err := store.ListReservationsByOrder(ctx, s.db, order.ID, models.ReservationStatusReserved)
	if err != nil {
		return vendor.SalesOrder{}, err
	}
	if len(reservations) == 0 {
		return vendor.SalesOrder{}, ErrNoReservations
	}

	address, err := store.GetAddress(ctx, s.db, order.ShippingAddressID)
	if err != nil {
		return vendor.SalesOrder{}, err
	}

	payload := vendor.SalesOrder{
		Reference: order.OrderNumber,
		ShippingAddress: vendor.ShippingAddress{
			FirstName:  address.FirstName,
			LastName:   address.LastName,
			Company:    address.Company,
			Street:     address.Street,
			PostalCode: address.PostalCode,
			City:       address.City,
			Country:    address.Country,
			Phone:      address.Phone,
			Email:      firstNonEmpty(address.Email, order.CustomerEmail),
		},
	}

	for _, r := range reservations {
		payload.Lines = append(payload.Lines, vendor.SalesOrderLine{
			ArticleID:     r.VendorArticleID,
			ReservationID: r.VendorReservationID,
			Quantity:      r.Quantity,
		})
	}

	return payload, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
