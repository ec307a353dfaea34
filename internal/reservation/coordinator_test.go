package reservation_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/reservation"
	"github.com/safar/storefront-api/internal/store"
	"github.com/safar/storefront-api/internal/testdb"
	"github.com/shopspring/decimal"
)

type fakeVendor struct {
	mu          sync.Mutex
	failArticle map[string]bool
	failRelease bool
	reserved    []string
	released    []string
}

func (f *fakeVendor) ReserveArticle(ctx context.Context, articleID string, quantity int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failArticle[articleID] {
		return "", errors.New("article out of stock")
	}
	f.reserved = append(f.reserved, articleID)
	return fmt.Sprintf("VR-%s-%d", articleID, len(f.reserved)), nil
}

func (f *fakeVendor) RemoveReservedArticle(ctx context.Context, articleID, reservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRelease {
		return errors.New("vendor unavailable")
	}
	f.released = append(f.released, reservationID)
	return nil
}

func TestReserveContinuesPastFailures(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	vendor := &fakeVendor{failArticle: map[string]bool{"ART-B": true}}
	m := metrics.New(prometheus.NewRegistry())
	c := reservation.NewCoordinator(db, vendor, zerolog.Nop(), m)

	order := seedOrder(t, db, "ART-A", "ART-B", "ART-C")

	reservations, err := c.ReserveOrderProducts(ctx, order.ID, order.Items)
	if err != nil {
		t.Fatalf("ReserveOrderProducts: %v", err)
	}

	if len(reservations) != 3 {
		t.Fatalf("Expected 3 reservations, got %d", len(reservations))
	}
	if reservations[1].Status != models.ReservationStatusFailed || reservations[1].ErrorMessage == "" {
		t.Errorf("Expected failed reservation with message for ART-B, got %+v", reservations[1])
	}
	if reservations[2].Status != models.ReservationStatusReserved {
		t.Errorf("ART-C should still be reserved after ART-B failed, got %s", reservations[2].Status)
	}
	if reservation.AllReserved(order.Items, reservations) {
		t.Error("AllReserved should be false with a failed item")
	}

	if got := testutil.ToFloat64(m.Reservations.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed reservation metric, got %v", got)
	}
}

func TestReserveSkipsHeldItems(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	vendor := &fakeVendor{failArticle: map[string]bool{"ART-B": true}}
	c := reservation.NewCoordinator(db, vendor, zerolog.Nop(), metrics.NewNop())

	order := seedOrder(t, db, "ART-A", "ART-B")

	if _, err := c.ReserveOrderProducts(ctx, order.ID, order.Items); err != nil {
		t.Fatalf("First reserve: %v", err)
	}

	vendor.failArticle = nil
	reservations, err := c.ReserveOrderProducts(ctx, order.ID, order.Items)
	if err != nil {
		t.Fatalf("Second reserve: %v", err)
	}

	if !reservation.AllReserved(order.Items, reservations) {
		t.Errorf("Expected every item reserved, got %+v", reservations)
	}
	if len(vendor.reserved) != 2 {
		t.Errorf("Expected ART-A reserved once and ART-B once, got %v", vendor.reserved)
	}
}

func TestUnreserveReleasesOnlyHeld(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	vendor := &fakeVendor{failArticle: map[string]bool{"ART-B": true}}
	c := reservation.NewCoordinator(db, vendor, zerolog.Nop(), metrics.NewNop())

	order := seedOrder(t, db, "ART-A", "ART-B")
	if _, err := c.ReserveOrderProducts(ctx, order.ID, order.Items); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := c.UnreserveOrderProducts(ctx, order.ID); err != nil {
		t.Fatalf("Unreserve: %v", err)
	}
	if len(vendor.released) != 1 {
		t.Errorf("Expected exactly one release, got %v", vendor.released)
	}

	if err := c.UnreserveOrderProducts(ctx, order.ID); err != nil {
		t.Fatalf("Second unreserve: %v", err)
	}
	if len(vendor.released) != 1 {
		t.Errorf("Released reservations must not be released again, got %v", vendor.released)
	}

	released, err := store.ListReservationsByOrder(ctx, db, order.ID, models.ReservationStatusReleased)
	if err != nil {
		t.Fatalf("List released: %v", err)
	}
	if len(released) != 1 {
		t.Errorf("Expected 1 released reservation, got %d", len(released))
	}
}

func TestUnreserveSwallowsVendorFailure(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	vendor := &fakeVendor{}
	m := metrics.New(prometheus.NewRegistry())
	c := reservation.NewCoordinator(db, vendor, zerolog.Nop(), m)

	order := seedOrder(t, db, "ART-A")
	if _, err := c.ReserveOrderProducts(ctx, order.ID, order.Items); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	vendor.failRelease = true
	if err := c.UnreserveOrderProducts(ctx, order.ID); err != nil {
		t.Fatalf("Vendor failure must not propagate: %v", err)
	}
	if got := testutil.ToFloat64(m.ReleaseFailures); got != 1 {
		t.Errorf("Expected 1 release failure, got %v", got)
	}
}

func TestAllReserved(t *testing.T) {
	items := []models.OrderItem{{ID: 1}, {ID: 2}}

	tests := []struct {
		name         string
		reservations []models.Reservation
		want         bool
	}{
		{"all reserved", []models.Reservation{{OrderItemID: 1, Status: models.ReservationStatusReserved}, {OrderItemID: 2, Status: models.ReservationStatusReserved}}, true},
		{"one missing", []models.Reservation{{OrderItemID: 1, Status: models.ReservationStatusReserved}}, false},
		{"one pending", []models.Reservation{{OrderItemID: 1, Status: models.ReservationStatusReserved}, {OrderItemID: 2, Status: models.ReservationStatusPending}}, false},
		{"none", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reservation.AllReserved(items, tt.reservations); got != tt.want {
				t.Errorf("AllReserved() = %v, want %v", got, tt.want)
			}
		})
	}
}

func seedOrder(t *testing.T, db *sql.DB, articleIDs ...string) *models.Order {
	t.Helper()
	ctx := context.Background()

	address := &models.Address{FirstName: "A", LastName: "B", Street: "S 1", PostalCode: "20095", City: "Hamburg", Country: "DE"}
	if err := store.InsertAddress(ctx, db, address); err != nil {
		t.Fatalf("Insert address: %v", err)
	}

	order := &models.Order{
		OrderNumber:       "ORD-" + articleIDs[0],
		CustomerEmail:     "buyer@example.com",
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusPaid,
		Subtotal:          decimal.Zero,
		TaxAmount:         decimal.Zero,
		ShippingAmount:    decimal.Zero,
		TotalAmount:       decimal.Zero,
		BillingAddressID:  address.ID,
		ShippingAddressID: address.ID,
	}
	if err := store.InsertOrder(ctx, db, order); err != nil {
		t.Fatalf("Insert order: %v", err)
	}

	for _, articleID := range articleIDs {
		product, err := store.CreateProduct(ctx, db, store.ProductParams{
			VendorArticleID: articleID,
			SKU:             "SKU-" + articleID,
			Name:            articleID,
			BasePrice:       decimal.NewFromInt(10),
			Price:           decimal.NewFromInt(10),
			IsAvailable:     true,
		})
		if err != nil {
			t.Fatalf("Create product: %v", err)
		}

		item := models.OrderItem{
			OrderID:         order.ID,
			ProductID:       product.ID,
			VendorArticleID: articleID,
			ProductName:     product.Name,
			SKU:             product.SKU,
			UnitPrice:       product.Price,
			Quantity:        1,
			Subtotal:        product.Price,
		}
		if err := store.InsertOrderItem(ctx, db, &item); err != nil {
			t.Fatalf("Insert item: %v", err)
		}
		order.Items = append(order.Items, item)
	}

	return order
}
