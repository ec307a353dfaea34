package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/models"
)

const orderColumns = `id, order_number, customer_email, customer_name, status, payment_status, payment_reference,
	subtotal, tax_amount, shipping_amount, total_amount, billing_address_id, shipping_address_id,
	vendor_order_id, notes, created_at, updated_at, version`

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerEmail,
		&order.CustomerName,
		&order.Status,
		&order.PaymentStatus,
		&order.PaymentReference,
		&order.Subtotal,
		&order.TaxAmount,
		&order.ShippingAmount,
		&order.TotalAmount,
		&order.BillingAddressID,
		&order.ShippingAddressID,
		&order.VendorOrderID,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// InsertOrder writes the order header and fills in the generated id, timestamps and version.
func InsertOrder(ctx context.Context, q Querier, order *models.Order) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO orders (order_number, customer_email, customer_name, status, payment_status,
		                     subtotal, tax_amount, shipping_amount, total_amount,
		                     billing_address_id, shipping_address_id, notes, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW(), 1)
		 RETURNING id, created_at, updated_at, version`,
		order.OrderNumber,
		order.CustomerEmail,
		order.CustomerName,
		order.Status,
		order.PaymentStatus,
		order.Subtotal,
		order.TaxAmount,
		order.ShippingAmount,
		order.TotalAmount,
		order.BillingAddressID,
		order.ShippingAddressID,
		order.Notes,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func InsertOrderItem(ctx context.Context, q Querier, item *models.OrderItem) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, vendor_article_id, product_name, sku,
		                          unit_price, quantity, subtotal, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 RETURNING id, created_at`,
		item.OrderID,
		item.ProductID,
		item.VendorArticleID,
		item.ProductName,
		item.SKU,
		item.UnitPrice,
		item.Quantity,
		item.Subtotal,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}

	return nil
}

// GetOrder loads the order header and its line items.
func GetOrder(ctx context.Context, q Querier, id int64) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := GetOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// GetOrderDetails is GetOrder plus both addresses and the reservation bookkeeping.
func GetOrderDetails(ctx context.Context, q Querier, id int64) (*models.Order, error) {
	order, err := GetOrder(ctx, q, id)
	if err != nil {
		return nil, err
	}

	if order.BillingAddress, err = GetAddress(ctx, q, order.BillingAddressID); err != nil {
		return nil, fmt.Errorf("billing address: %w", err)
	}
	if order.ShippingAddressID == order.BillingAddressID {
		order.ShippingAddress = order.BillingAddress
	} else if order.ShippingAddress, err = GetAddress(ctx, q, order.ShippingAddressID); err != nil {
		return nil, fmt.Errorf("shipping address: %w", err)
	}

	if order.Reservations, err = ListReservationsByOrder(ctx, q, id); err != nil {
		return nil, err
	}

	return order, nil
}

func GetOrderItems(ctx context.Context, q Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, vendor_article_id, product_name, sku, unit_price, quantity, subtotal, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.VendorArticleID,
			&item.ProductName,
			&item.SKU,
			&item.UnitPrice,
			&item.Quantity,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// UpdateOrderState persists status, payment fields and vendor order id guarded by the row
// version. On success order.Version and order.UpdatedAt reflect the new row.
func UpdateOrderState(ctx context.Context, q Querier, order *models.Order) error {
	err := q.QueryRowContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     payment_status = $2,
		     payment_reference = $3,
		     vendor_order_id = $4,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $5 AND version = $6
		 RETURNING updated_at, version`,
		order.Status,
		order.PaymentStatus,
		order.PaymentReference,
		order.VendorOrderID,
		order.ID,
		order.Version,
	).Scan(&order.UpdatedAt, &order.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrOptimisticLockFailed
		}
		return fmt.Errorf("update order state: %w", err)
	}

	return nil
}

// LockOrder selects the order header FOR UPDATE. It must run inside a transaction.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

// ListOrdersCursor pages through orders newest first. An empty status lists every order.
func ListOrdersCursor(ctx context.Context, q Querier, status models.OrderStatus, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::TEXT = '' OR status = $1)
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, string(status), cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrdersReadyForVendor returns reserved orders whose every reservation is reserved.
// Orders with a failed, pending or released reservation, or with none at all, are left out.
func ListOrdersReadyForVendor(ctx context.Context, q Querier) ([]models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.status = $1
		  AND EXISTS (SELECT 1 FROM reservations r WHERE r.order_id = o.id)
		  AND NOT EXISTS (
		      SELECT 1 FROM reservations r
		      WHERE r.order_id = o.id AND r.status <> $2)
		ORDER BY o.created_at, o.id`

	rows, err := q.QueryContext(ctx, query, models.OrderStatusReserved, models.ReservationStatusReserved)
	if err != nil {
		return nil, fmt.Errorf("list orders ready for vendor: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// CountOrders returns the number of orders in the table.
func CountOrders(ctx context.Context, q Querier) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}
