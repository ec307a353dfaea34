package pricing_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/pricing"
	"github.com/safar/storefront-api/internal/store"
	"github.com/safar/storefront-api/internal/testdb"
	"github.com/shopspring/decimal"
)

func TestSetMarkupReprices(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	svc := pricing.NewService(db, zerolog.Nop())

	category, err := store.EnsureCategory(ctx, db, "Forklifts")
	if err != nil {
		t.Fatalf("Ensure category: %v", err)
	}

	product, err := store.CreateProduct(ctx, db, store.ProductParams{
		VendorArticleID: "ART-900",
		SKU:             "SKU-900",
		Name:            "Forklift",
		CategoryID:      &category,
		BasePrice:       decimal.RequireFromString("900.00"),
		Price:           decimal.RequireFromString("900.00"),
		IsAvailable:     true,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if _, _, err := svc.SetGlobalMarkup(ctx, decimal.NewFromInt(15), 0); err != nil {
		t.Fatalf("Set global markup: %v", err)
	}
	assertPrice(t, db, product.ID, "1035.00")

	_, repriced, err := svc.SetCategoryMarkup(ctx, category, decimal.NewFromInt(20), 0)
	if err != nil {
		t.Fatalf("Set category markup: %v", err)
	}
	if repriced != 1 {
		t.Errorf("Expected 1 repriced product, got %d", repriced)
	}
	assertPrice(t, db, product.ID, "1080.00")

	if _, err := svc.DeleteCategoryRule(ctx, category); err != nil {
		t.Fatalf("Delete category rule: %v", err)
	}
	assertPrice(t, db, product.ID, "1035.00")
}

func TestRepriceLeavesOrderSnapshots(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	svc := pricing.NewService(db, zerolog.Nop())

	product, err := store.CreateProduct(ctx, db, store.ProductParams{
		VendorArticleID: "ART-SNAP",
		SKU:             "SKU-SNAP",
		Name:            "Snapshot",
		BasePrice:       decimal.RequireFromString("100.00"),
		Price:           decimal.RequireFromString("100.00"),
		IsAvailable:     true,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	address := &models.Address{FirstName: "A", LastName: "B", Street: "S", PostalCode: "1", City: "C", Country: "DE"}
	if err := store.InsertAddress(ctx, db, address); err != nil {
		t.Fatalf("Insert address: %v", err)
	}
	order := &models.Order{
		OrderNumber:       "ORD-SNAP",
		CustomerEmail:     "snap@example.com",
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusUnpaid,
		Subtotal:          product.Price,
		TaxAmount:         decimal.Zero,
		ShippingAmount:    decimal.Zero,
		TotalAmount:       product.Price,
		BillingAddressID:  address.ID,
		ShippingAddressID: address.ID,
	}
	if err := store.InsertOrder(ctx, db, order); err != nil {
		t.Fatalf("Insert order: %v", err)
	}
	item := &models.OrderItem{
		OrderID: order.ID, ProductID: product.ID, VendorArticleID: product.VendorArticleID,
		ProductName: product.Name, SKU: product.SKU, UnitPrice: product.Price, Quantity: 1, Subtotal: product.Price,
	}
	if err := store.InsertOrderItem(ctx, db, item); err != nil {
		t.Fatalf("Insert item: %v", err)
	}

	if _, _, err := svc.SetGlobalMarkup(ctx, decimal.NewFromInt(50), 0); err != nil {
		t.Fatalf("Set global markup: %v", err)
	}
	assertPrice(t, db, product.ID, "150.00")

	items, err := store.GetOrderItems(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get items: %v", err)
	}
	if !items[0].UnitPrice.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("Order item snapshot changed to %s", items[0].UnitPrice)
	}
}

func TestSetMarkupRejectsOutOfRange(t *testing.T) {
	svc := pricing.NewService(nil, zerolog.Nop())

	if _, _, err := svc.SetGlobalMarkup(context.Background(), decimal.NewFromInt(-100), 0); err != pricing.ErrInvalidMarkup {
		t.Errorf("Expected ErrInvalidMarkup, got %v", err)
	}
}

func assertPrice(t *testing.T, q store.Querier, productID int64, want string) {
	t.Helper()

	p, err := store.GetProduct(context.Background(), q, productID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if !p.Price.Equal(decimal.RequireFromString(want)) {
		t.Errorf("Expected price %s, got %s", want, p.Price)
	}
}
