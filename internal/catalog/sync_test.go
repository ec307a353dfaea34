package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/catalog"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/store"
	"github.com/safar/storefront-api/internal/testdb"
	"github.com/safar/storefront-api/internal/vendor"
	"github.com/shopspring/decimal"
)

type staticStock struct {
	items []vendor.StockItem
	err   error
}

func (s *staticStock) GetCurrentStock(ctx context.Context) ([]vendor.StockItem, error) {
	return s.items, s.err
}

func TestSyncUpsertsAndPrices(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	if _, err := store.SetActivePricingRule(ctx, db, models.PricingScopeGlobal, nil, decimal.NewFromInt(15), 0); err != nil {
		t.Fatalf("Set global rule: %v", err)
	}

	source := &staticStock{items: []vendor.StockItem{
		{ArticleID: "A-1", SKU: "S-1", Name: "Phone", Category: "Phones", Price: decimal.RequireFromString("900.00"), Quantity: 3},
		{ArticleID: "A-2", SKU: "S-2", Name: "Tablet", Price: decimal.RequireFromString("100.00"), Quantity: 0},
		{ArticleID: "", Name: "broken"},
	}}

	m := metrics.New(prometheus.NewRegistry())
	syncer := catalog.NewSyncer(db, source, zerolog.Nop(), m)

	result, err := syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Created != 2 || result.Failed != 1 {
		t.Errorf("Expected 2 created and 1 failed, got %+v", result)
	}

	products, err := store.ListProductsByCategory(ctx, db, nil)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	byArticle := map[string]models.Product{}
	for _, p := range products {
		byArticle[p.VendorArticleID] = p
	}

	phone := byArticle["A-1"]
	if !phone.Price.Equal(decimal.RequireFromString("1035.00")) {
		t.Errorf("Expected phone price 1035.00, got %s", phone.Price)
	}
	if phone.CategoryID == nil {
		t.Error("Phone should be assigned to a category")
	}
	if byArticle["A-2"].IsAvailable {
		t.Error("Tablet with zero stock should be unavailable")
	}

	source.items = []vendor.StockItem{
		{ArticleID: "A-1", SKU: "S-1", Name: "Phone", Category: "Phones", Price: decimal.RequireFromString("800.00"), Quantity: 1},
	}
	result, err = syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("Second sync: %v", err)
	}
	if result.Updated != 1 || result.Created != 0 {
		t.Errorf("Expected 1 updated, got %+v", result)
	}

	if got := testutil.ToFloat64(m.ProductsSynced.WithLabelValues("updated")); got != 1 {
		t.Errorf("Expected 1 updated metric, got %v", got)
	}
}

func TestSyncWithoutCategoryKeepsCategoryPrice(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	if _, err := store.SetActivePricingRule(ctx, db, models.PricingScopeGlobal, nil, decimal.NewFromInt(15), 0); err != nil {
		t.Fatalf("Set global rule: %v", err)
	}
	phones, err := store.EnsureCategory(ctx, db, "Phones")
	if err != nil {
		t.Fatalf("Ensure category: %v", err)
	}
	if _, err := store.SetActivePricingRule(ctx, db, models.PricingScopeCategory, &phones, decimal.NewFromInt(20), 0); err != nil {
		t.Fatalf("Set category rule: %v", err)
	}

	source := &staticStock{items: []vendor.StockItem{
		{ArticleID: "A-1", SKU: "S-1", Name: "Phone", Category: "Phones", Price: decimal.RequireFromString("900.00"), Quantity: 3},
	}}
	syncer := catalog.NewSyncer(db, source, zerolog.Nop(), metrics.NewNop())

	if _, err := syncer.Sync(ctx); err != nil {
		t.Fatalf("First sync: %v", err)
	}

	source.items[0].Category = ""
	if _, err := syncer.Sync(ctx); err != nil {
		t.Fatalf("Second sync: %v", err)
	}

	products, err := store.ListProductsByCategory(ctx, db, &phones)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("Expected the phone to stay in its category, got %d products", len(products))
	}
	if !products[0].Price.Equal(decimal.RequireFromString("1080.00")) {
		t.Errorf("Expected category price 1080.00, got %s", products[0].Price)
	}
}

func TestSyncMarksMissingUnavailable(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	source := &staticStock{items: []vendor.StockItem{
		{ArticleID: "KEEP", Price: decimal.NewFromInt(10), Quantity: 1},
		{ArticleID: "GONE", Price: decimal.NewFromInt(10), Quantity: 1},
	}}
	syncer := catalog.NewSyncer(db, source, zerolog.Nop(), metrics.NewNop())

	if _, err := syncer.Sync(ctx); err != nil {
		t.Fatalf("First sync: %v", err)
	}

	source.items = source.items[:1]
	result, err := syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("Second sync: %v", err)
	}
	if result.Unavailable != 1 {
		t.Errorf("Expected 1 product marked unavailable, got %d", result.Unavailable)
	}
}

func TestSyncVendorFailure(t *testing.T) {
	syncer := catalog.NewSyncer(nil, &staticStock{err: errors.New("boom")}, zerolog.Nop(), metrics.NewNop())

	if _, err := syncer.Sync(context.Background()); err == nil {
		t.Error("Expected vendor failure to be returned")
	}
}
