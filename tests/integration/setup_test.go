package integration

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/api"
	"github.com/safar/storefront-api/internal/catalog"
	"github.com/safar/storefront-api/internal/config"
	"github.com/safar/storefront-api/internal/events"
	"github.com/safar/storefront-api/internal/fulfillment"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/orders"
	"github.com/safar/storefront-api/internal/pricing"
	"github.com/safar/storefront-api/internal/ratelimit"
	"github.com/safar/storefront-api/internal/reservation"
	"github.com/safar/storefront-api/internal/testdb"
	"github.com/safar/storefront-api/internal/vendor"
	"github.com/shopspring/decimal"
)

const adminToken = "integration-token"

// vendorServer is an in-memory stand-in for the vendor's HTTP API.
type vendorServer struct {
	mu           sync.Mutex
	stock        []vendor.StockItem
	failReserve  map[string]bool
	reservations map[string]string
	released     []string
	salesOrders  []vendor.SalesOrder
	seq          int
}

type vendorArticleRequest struct {
	ArticleID     string `json:"ArticleId"`
	Quantity      int    `json:"Quantity"`
	ReservationID string `json:"ReservationId"`
}

func newVendorServer(stock ...vendor.StockItem) *vendorServer {
	return &vendorServer{
		stock:        stock,
		failReserve:  map[string]bool{},
		reservations: map[string]string{},
	}
}

func (v *vendorServer) reply(w http.ResponseWriter, status, message string, returnVal any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"message":   message,
		"ReturnVal": returnVal,
	})
}

func (v *vendorServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch strings.TrimPrefix(r.URL.Path, "/") {
	case vendor.OpGetCurrentStock:
		v.reply(w, "OK", "", v.stock)

	case vendor.OpReserveArticle:
		var req vendorArticleRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if v.failReserve[req.ArticleID] {
			v.reply(w, "ERROR", "article "+req.ArticleID+" is out of stock", nil)
			return
		}
		v.seq++
		id := fmt.Sprintf("RES-%d", v.seq)
		v.reservations[id] = req.ArticleID
		v.reply(w, "OK", "", map[string]string{"ReservationId": id})

	case vendor.OpRemoveReservedArticle:
		var req vendorArticleRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		delete(v.reservations, req.ReservationID)
		v.released = append(v.released, req.ReservationID)
		v.reply(w, "OK", "", nil)

	case vendor.OpCreateSalesOrder:
		var so vendor.SalesOrder
		_ = json.NewDecoder(r.Body).Decode(&so)
		v.salesOrders = append(v.salesOrders, so)
		v.reply(w, "OK", "", map[string]string{"OrderId": fmt.Sprintf("SO-%d", len(v.salesOrders))})

	default:
		http.NotFound(w, r)
	}
}

func (v *vendorServer) failFor(articleID string, fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failReserve[articleID] = fail
}

func (v *vendorServer) counts() (held, released, salesOrders int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.reservations), len(v.released), len(v.salesOrders)
}

type stack struct {
	db     *sql.DB
	vendor *vendorServer
	server *httptest.Server
}

// setupStack wires the full application against a fresh database and a fake vendor.
func setupStack(t *testing.T, stock ...vendor.StockItem) *stack {
	t.Helper()

	db := testdb.New(t)
	log := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())

	vs := newVendorServer(stock...)
	vendorHTTP := httptest.NewServer(vs)
	t.Cleanup(vendorHTTP.Close)

	client := vendor.NewClient(config.VendorConfig{
		BaseURL:    vendorHTTP.URL,
		APIKey:     "key",
		CustomerID: "customer",
		Timeout:    5 * time.Second,
	}, log, m)

	shop := config.ShopConfig{
		TaxRate:               decimal.RequireFromString("0.19"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		ShippingFee:           decimal.RequireFromString("9.99"),
	}

	coordinator := reservation.NewCoordinator(db, client, log, m)
	handler := api.NewRouter(api.Deps{
		Orders:    orders.NewService(db, shop, coordinator, events.Nop(), log, m),
		Products:  catalog.NewCatalog(db),
		Pricing:   pricing.NewService(db, log),
		Submitter: fulfillment.NewSubmitter(db, client, events.Nop(), log, m),
		Syncer:    catalog.NewSyncer(db, client, log, m),
		Vendor:    client,
		Limiter:   ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithMetrics(m)),
		DB:        db,
		Log:       log,
	}, api.Options{
		AdminToken: adminToken,
		OrderRule:  ratelimit.Rule{MaxAttempts: 100, Window: time.Minute},
		AuthRule:   ratelimit.DefaultRule,
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &stack{db: db, vendor: vs, server: server}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

func (s *stack) call(t *testing.T, method, path string, admin bool, body any, out any) (int, response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("Build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("Decode %s %s: %v", method, path, err)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("Decode data of %s %s: %v", method, path, err)
		}
	}

	return resp.StatusCode, env
}

func stockItem(articleID, sku, category, price string, qty int) vendor.StockItem {
	return vendor.StockItem{
		ArticleID: articleID,
		SKU:       sku,
		Name:      "Device " + sku,
		Category:  category,
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func checkoutRequest(items ...orders.CartItem) orders.CreateOrderRequest {
	return orders.CreateOrderRequest{
		CustomerEmail: "Buyer@Example.com",
		CustomerName:  "Test Buyer",
		Items:         items,
		BillingAddress: orders.AddressInput{
			FirstName:  "Test",
			LastName:   "Buyer",
			Street:     "Main Street 1",
			PostalCode: "10115",
			City:       "Berlin",
			Country:    "de",
		},
	}
}
