package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/models"
)

const reservationColumns = `id, order_id, order_item_id, product_id, vendor_article_id, quantity, status,
	vendor_reservation_id, error_message, created_at, updated_at`

func scanReservation(row rowScanner) (*models.Reservation, error) {
	r := &models.Reservation{}
	err := row.Scan(
		&r.ID,
		&r.OrderID,
		&r.OrderItemID,
		&r.ProductID,
		&r.VendorArticleID,
		&r.Quantity,
		&r.Status,
		&r.VendorReservationID,
		&r.ErrorMessage,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func GetReservationByOrderItem(ctx context.Context, q Querier, orderItemID int64) (*models.Reservation, error) {
	r, err := scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE order_item_id = $1`, orderItemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// UpsertPendingReservation creates the reservation row for an order item, or resets an existing
// one to pending with its vendor id and error cleared. There is at most one row per item.
func UpsertPendingReservation(ctx context.Context, q Querier, orderID int64, item models.OrderItem) (*models.Reservation, error) {
	query := `
		INSERT INTO reservations (order_id, order_item_id, product_id, vendor_article_id, quantity, status,
		                          vendor_reservation_id, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', '', NOW(), NOW())
		ON CONFLICT (order_item_id) DO UPDATE
		SET status = EXCLUDED.status,
		    quantity = EXCLUDED.quantity,
		    vendor_reservation_id = '',
		    error_message = '',
		    updated_at = NOW()
		RETURNING ` + reservationColumns

	r, err := scanReservation(q.QueryRowContext(ctx, query,
		orderID, item.ID, item.ProductID, item.VendorArticleID, item.Quantity, models.ReservationStatusPending))
	if err != nil {
		return nil, fmt.Errorf("upsert reservation for item %d: %w", item.ID, err)
	}
	return r, nil
}

func UpdateReservationStatus(ctx context.Context, q Querier, id int64, status models.ReservationStatus, vendorReservationID, errMsg string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE reservations
		 SET status = $1, vendor_reservation_id = $2, error_message = $3, updated_at = NOW()
		 WHERE id = $4`,
		status, vendorReservationID, errMsg, id)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrReservationNotFound
	}

	return nil
}

// ListReservationsByOrder returns the order's reservations in item order. When statuses are
// given only reservations in one of them are returned.
func ListReservationsByOrder(ctx context.Context, q Querier, orderID int64, statuses ...models.ReservationStatus) ([]models.Reservation, error) {
	filter := make([]string, len(statuses))
	for i, s := range statuses {
		filter[i] = string(s)
	}

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE order_id = $1
		  AND (cardinality($2::TEXT[]) = 0 OR status = ANY($2))
		ORDER BY order_item_id`

	rows, err := q.QueryContext(ctx, query, orderID, pq.Array(filter))
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return reservations, nil
}

// MarkOrderReservationsOrdered flips every reserved reservation of the order to ordered.
func MarkOrderReservationsOrdered(ctx context.Context, q Querier, orderID int64) (int64, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE reservations
		 SET status = $1, updated_at = NOW()
		 WHERE order_id = $2 AND status = $3`,
		models.ReservationStatusOrdered, orderID, models.ReservationStatusReserved)
	if err != nil {
		return 0, fmt.Errorf("mark reservations ordered: %w", err)
	}

	return result.RowsAffected()
}
