// Package reservation holds vendor stock for paid orders and tracks each hold locally.
//
// The vendor protocol has no idempotency key, so the reservations table is the dedupe record:
// an item that already has a reserved or ordered reservation is never sent to the vendor again.
package reservation

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/store"
)

// Vendor is the subset of the vendor client the coordinator needs.
type Vendor interface {
	ReserveArticle(ctx context.Context, articleID string, quantity int) (string, error)
	RemoveReservedArticle(ctx context.Context, articleID, reservationID string) error
}

type Coordinator struct {
	db      *sql.DB
	vendor  Vendor
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewCoordinator(db *sql.DB, vendor Vendor, log zerolog.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		db:      db,
		vendor:  vendor,
		log:     log.With().Str("component", "reservation").Logger(),
		metrics: m,
	}
}

// ReserveOrderProducts asks the vendor to hold every item. A vendor failure marks that item's
// reservation failed and processing moves on to the next item. The returned error is only ever a
// local storage failure; callers inspect the reservations to learn whether every item is held.
func (c *Coordinator) ReserveOrderProducts(ctx context.Context, orderID int64, items []models.OrderItem) ([]models.Reservation, error) {
	reservations := make([]models.Reservation, 0, len(items))

	for _, item := range items {
		existing, err := store.GetReservationByOrderItem(ctx, c.db, item.ID)
		switch {
		case err == nil && (existing.Status == models.ReservationStatusReserved || existing.Status == models.ReservationStatusOrdered):
			c.metrics.Reservations.WithLabelValues("skipped").Inc()
			reservations = append(reservations, *existing)
			continue
		case err != nil && !errors.Is(err, database.ErrReservationNotFound):
			return reservations, err
		}

		r, err := store.UpsertPendingReservation(ctx, c.db, orderID, item)
		if err != nil {
			return reservations, err
		}

		log := c.log.With().
			Int64("order_id", orderID).
			Int64("order_item_id", item.ID).
			Str("article_id", item.VendorArticleID).
			Int("quantity", item.Quantity).
			Logger()

		vendorID, vendorErr := c.vendor.ReserveArticle(ctx, item.VendorArticleID, item.Quantity)
		if vendorErr != nil {
			r.Status = models.ReservationStatusFailed
			r.ErrorMessage = vendorErr.Error()
			c.metrics.Reservations.WithLabelValues("failed").Inc()
			log.Warn().Err(vendorErr).Msg("vendor reservation failed")
		} else {
			r.Status = models.ReservationStatusReserved
			r.VendorReservationID = vendorID
			c.metrics.Reservations.WithLabelValues("reserved").Inc()
			log.Info().Str("vendor_reservation_id", vendorID).Msg("article reserved")
		}

		if err := store.UpdateReservationStatus(ctx, c.db, r.ID, r.Status, r.VendorReservationID, r.ErrorMessage); err != nil {
			// The vendor hold may now exist without a local record.
			log.Error().Err(err).Str("vendor_reservation_id", vendorID).Msg("could not record reservation outcome")
			return reservations, err
		}

		reservations = append(reservations, *r)
	}

	return reservations, nil
}

// UnreserveOrderProducts releases every reserved hold of the order. Vendor failures are logged
// and counted but never returned, so a stuck vendor hold cannot block a local cancellation.
func (c *Coordinator) UnreserveOrderProducts(ctx context.Context, orderID int64) error {
	held, err := store.ListReservationsByOrder(ctx, c.db, orderID, models.ReservationStatusReserved)
	if err != nil {
		return err
	}

	for _, r := range held {
		log := c.log.With().
			Int64("order_id", orderID).
			Int64("reservation_id", r.ID).
			Str("vendor_reservation_id", r.VendorReservationID).
			Logger()

		if err := c.vendor.RemoveReservedArticle(ctx, r.VendorArticleID, r.VendorReservationID); err != nil {
			c.metrics.ReleaseFailures.Inc()
			log.Error().Err(err).Msg("vendor release failed, manual cleanup required")
			continue
		}

		if err := store.UpdateReservationStatus(ctx, c.db, r.ID, models.ReservationStatusReleased, r.VendorReservationID, ""); err != nil {
			log.Error().Err(err).Msg("could not record released reservation")
			continue
		}

		log.Info().Msg("reservation released")
	}

	return nil
}

// AllReserved reports whether every item has a reservation in the reserved state.
func AllReserved(items []models.OrderItem, reservations []models.Reservation) bool {
	if len(items) == 0 {
		return false
	}

	byItem := make(map[int64]models.ReservationStatus, len(reservations))
	for _, r := range reservations {
		byItem[r.OrderItemID] = r.Status
	}

	for _, item := range items {
		if byItem[item.ID] != models.ReservationStatusReserved {
			return false
		}
	}
	return true
}
