// Package orders implements checkout and the order lifecycle driven by payment outcomes.
package orders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/config"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/events"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/reservation"
	"github.com/safar/storefront-api/internal/store"
	"github.com/shopspring/decimal"
)

// Reserver holds and releases vendor stock for an order.
type Reserver interface {
	ReserveOrderProducts(ctx context.Context, orderID int64, items []models.OrderItem) ([]models.Reservation, error)
	UnreserveOrderProducts(ctx context.Context, orderID int64) error
}

type Service struct {
	db        *sql.DB
	shop      config.ShopConfig
	reserver  Reserver
	publisher events.Publisher
	log       zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(db *sql.DB, shop config.ShopConfig, reserver Reserver, publisher events.Publisher, log zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		db:        db,
		shop:      shop,
		reserver:  reserver,
		publisher: publisher,
		log:       log.With().Str("component", "orders").Logger(),
		metrics:   m,
		now:       time.Now,
	}
}

// NewOrderNumber returns ORD-YYYYMMDD-XXXXXXXXXX with ten uppercase hex characters of a random uuid.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// CreateOrder validates the request, checks stock and writes the order with its addresses and
// item snapshots in one transaction. Nothing is written when validation or the stock check fails.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	items, err := s.checkStock(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	lineSubtotals := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		lineSubtotals = append(lineSubtotals, item.Subtotal)
	}
	totals := CalculateTotals(lineSubtotals, s.shop)

	order := &models.Order{
		CustomerEmail:  req.CustomerEmail,
		CustomerName:   req.CustomerName,
		Notes:          req.Notes,
		Status:         models.OrderStatusPending,
		PaymentStatus:  models.PaymentStatusUnpaid,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.Tax,
		ShippingAmount: totals.Shipping,
		TotalAmount:    totals.Total,
	}

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		billing := req.BillingAddress.toModel()
		if err := store.InsertAddress(ctx, tx, billing); err != nil {
			return err
		}
		order.BillingAddressID = billing.ID
		order.ShippingAddressID = billing.ID

		if req.ShippingAddress != nil {
			shipping := req.ShippingAddress.toModel()
			if err := store.InsertAddress(ctx, tx, shipping); err != nil {
				return err
			}
			order.ShippingAddressID = shipping.ID
		}

		order.OrderNumber = NewOrderNumber(s.now())
		if err := store.InsertOrder(ctx, tx, order); err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err := store.InsertOrderItem(ctx, tx, &items[i]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.metrics.OrdersCreated.Inc()
	s.log.Info().
		Int64("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Str("total", order.TotalAmount.StringFixed(2)).
		Int("items", len(items)).
		Msg("order created")

	payload := events.OrderCreatedPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		Total:         order.TotalAmount.StringFixed(2),
	}
	for _, item := range items {
		payload.Items = append(payload.Items, events.ItemQty{ProductID: item.ProductID, ArticleID: item.VendorArticleID, Qty: item.Quantity})
	}
	s.publish(ctx, events.TypeOrderCreated, order.OrderNumber, payload)

	return &CreateOrderResult{
		OrderID:             order.ID,
		OrderNumber:         order.OrderNumber,
		Total:               order.TotalAmount,
		Totals:              totals,
		ItemsForReservation: items,
	}, nil
}

// checkStock resolves every cart line to a product snapshot. Quantities of repeated products
// are summed before comparing with the available quantity.
func (s *Service) checkStock(ctx context.Context, cart []CartItem) ([]models.OrderItem, error) {
	requested := make(map[int64]int, len(cart))
	ids := make([]int64, 0, len(cart))
	for _, line := range cart {
		if _, seen := requested[line.ProductID]; !seen {
			ids = append(ids, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}

	products, err := store.GetProductsByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		p, ok := products[id]
		switch {
		case !ok:
			return nil, &StockUnavailableError{ProductID: id, Requested: requested[id], Reason: StockReasonNotFound}
		case !p.IsAvailable:
			return nil, &StockUnavailableError{ProductID: id, SKU: p.SKU, Requested: requested[id], Available: p.AvailableQuantity, Reason: StockReasonUnavailable}
		case p.AvailableQuantity < requested[id]:
			return nil, &StockUnavailableError{ProductID: id, SKU: p.SKU, Requested: requested[id], Available: p.AvailableQuantity, Reason: StockReasonInsufficient}
		}
	}

	items := make([]models.OrderItem, 0, len(cart))
	for _, line := range cart {
		p := products[line.ProductID]
		items = append(items, models.OrderItem{
			ProductID:       p.ID,
			VendorArticleID: p.VendorArticleID,
			ProductName:     p.Name,
			SKU:             p.SKU,
			UnitPrice:       p.Price,
			Quantity:        line.Quantity,
			Subtotal:        LineSubtotal(p.Price, line.Quantity),
		})
	}

	return items, nil
}

// GetOrder returns the order with items, addresses and reservations.
func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return store.GetOrderDetails(ctx, s.db, id)
}

func (s *Service) ListOrders(ctx context.Context, status models.OrderStatus, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListOrdersCursor(ctx, s.db, status, cursor, limit)
}

// HandlePaymentSuccess records the payment and reserves every item with the vendor. When all
// items are held the order becomes reserved. Otherwise it is left in payment_pending and a
// *ReservationFailureError is returned together with the updated order; nothing retries it
// automatically.
func (s *Service) HandlePaymentSuccess(ctx context.Context, orderID int64, paymentReference string) (*models.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusPending {
		return nil, &InvalidStateTransitionError{OrderID: order.ID, From: order.Status, To: models.OrderStatusReserved}
	}

	order.PaymentStatus = models.PaymentStatusPaid
	order.PaymentReference = strings.TrimSpace(paymentReference)
	if err := store.UpdateOrderState(ctx, s.db, order); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	s.log.Info().Int64("order_id", order.ID).Str("order_number", order.OrderNumber).Msg("payment captured")

	return s.reserveAndSettle(ctx, order)
}

// RetryReservation re-runs the vendor reservation for a payment_pending order. Items that are
// already held are not sent to the vendor again.
func (s *Service) RetryReservation(ctx context.Context, orderID int64) (*models.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusPaymentPending {
		return nil, &InvalidStateTransitionError{OrderID: order.ID, From: order.Status, To: models.OrderStatusReserved}
	}

	return s.reserveAndSettle(ctx, order)
}

func (s *Service) reserveAndSettle(ctx context.Context, order *models.Order) (*models.Order, error) {
	reservations, reserveErr := s.reserver.ReserveOrderProducts(ctx, order.ID, order.Items)

	if reserveErr == nil && reservation.AllReserved(order.Items, reservations) {
		if err := s.transition(ctx, order, models.OrderStatusReserved); err != nil {
			s.releaseIfCancelled(ctx, order.ID)
			return nil, err
		}
		order.Reservations = reservations
		return order, nil
	}

	failure := &ReservationFailureError{OrderID: order.ID, OrderNumber: order.OrderNumber, Err: reserveErr}
	for _, r := range reservations {
		if r.Status != models.ReservationStatusReserved {
			failure.Failed = append(failure.Failed, r)
		}
	}

	if order.Status != models.OrderStatusPaymentPending {
		if err := s.transition(ctx, order, models.OrderStatusPaymentPending); err != nil {
			s.releaseIfCancelled(ctx, order.ID)
			return nil, err
		}
	}

	s.log.Warn().
		Err(failure).
		Int64("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Msg("order paid but not fully reserved")

	order.Reservations = reservations
	return order, failure
}

// HandlePaymentFailure cancels a pending order and releases any holds it may have.
func (s *Service) HandlePaymentFailure(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusPending {
		return nil, &InvalidStateTransitionError{OrderID: order.ID, From: order.Status, To: models.OrderStatusCancelled}
	}

	order.PaymentStatus = models.PaymentStatusFailed
	if err := s.transition(ctx, order, models.OrderStatusCancelled); err != nil {
		return nil, err
	}

	s.log.Info().Int64("order_id", order.ID).Str("reason", reason).Msg("payment failed")
	s.release(ctx, order.ID)

	return order, nil
}

// CancelOrder is allowed from pending, payment_pending and reserved. A captured payment is
// marked refunded; the refund itself happens outside this service.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderStatusPending, models.OrderStatusPaymentPending, models.OrderStatusReserved:
	default:
		return nil, &InvalidStateTransitionError{OrderID: order.ID, From: order.Status, To: models.OrderStatusCancelled}
	}

	if order.PaymentStatus == models.PaymentStatusPaid {
		order.PaymentStatus = models.PaymentStatusRefunded
	}
	if err := s.transition(ctx, order, models.OrderStatusCancelled); err != nil {
		return nil, err
	}

	s.release(ctx, order.ID)
	return order, nil
}

// UpdateStatus applies an administrative status change. Only shipping progress can be set
// directly; cancellation goes through CancelOrder.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, error) {
	if to == models.OrderStatusCancelled {
		return s.CancelOrder(ctx, orderID)
	}

	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	if to != models.OrderStatusShipped && to != models.OrderStatusDelivered {
		return nil, &InvalidStateTransitionError{OrderID: order.ID, From: order.Status, To: to}
	}

	if err := s.transition(ctx, order, to); err != nil {
		return nil, err
	}
	return order, nil
}

// transition persists order with its status set to to. Payment fields already set on order
// are written in the same update.
func (s *Service) transition(ctx context.Context, order *models.Order, to models.OrderStatus) error {
	from := order.Status
	if !CanTransition(from, to) {
		return &InvalidStateTransitionError{OrderID: order.ID, From: from, To: to}
	}

	order.Status = to
	if err := store.UpdateOrderState(ctx, s.db, order); err != nil {
		order.Status = from
		return fmt.Errorf("update order %d to %s: %w", order.ID, to, err)
	}

	s.metrics.OrderTransitions.WithLabelValues(string(to)).Inc()
	s.log.Info().
		Int64("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("order status changed")

	s.publish(ctx, events.TypeOrderStatusChanged, order.OrderNumber, events.OrderStatusChangedPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		From:          string(from),
		To:            string(to),
		PaymentStatus: string(order.PaymentStatus),
		VendorOrderID: order.VendorOrderID,
	})

	return nil
}

// lockOrder claims the order until the returned func is called. It fails with
// database.ErrOrderBusy while another request holds the claim.
func (s *Service) lockOrder(ctx context.Context, orderID int64) (func(), error) {
	release, ok, err := store.TryLockOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, database.ErrOrderBusy
	}
	return release, nil
}

// releaseIfCancelled frees holds of an order that was cancelled while its reservations ran.
func (s *Service) releaseIfCancelled(ctx context.Context, orderID int64) {
	current, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		s.log.Error().Err(err).Int64("order_id", orderID).Msg("reload order after failed transition")
		return
	}
	if current.Status == models.OrderStatusCancelled {
		s.release(ctx, orderID)
	}
}

func (s *Service) release(ctx context.Context, orderID int64) {
	if err := s.reserver.UnreserveOrderProducts(ctx, orderID); err != nil {
		s.log.Error().Err(err).Int64("order_id", orderID).Msg("release reservations")
	}
}

func (s *Service) publish(ctx context.Context, eventType, key string, payload any) {
	if err := s.publisher.Publish(ctx, eventType, key, payload); err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Str("key", key).Msg("publish event")
	}
}
