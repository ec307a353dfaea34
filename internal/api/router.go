// Package api exposes the storefront and admin HTTP endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/safar/storefront-api/internal/catalog"
	"github.com/safar/storefront-api/internal/fulfillment"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/orders"
	"github.com/safar/storefront-api/internal/ratelimit"
	"github.com/safar/storefront-api/internal/store"
	"github.com/safar/storefront-api/internal/vendor"
	"github.com/shopspring/decimal"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.CreateOrderResult, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, status models.OrderStatus, cursor string, limit int) (*store.CursorPage, error)
	HandlePaymentSuccess(ctx context.Context, orderID int64, paymentReference string) (*models.Order, error)
	HandlePaymentFailure(ctx context.Context, orderID int64, reason string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, error)
	RetryReservation(ctx context.Context, orderID int64) (*models.Order, error)
}

type ProductCatalog interface {
	ListProducts(ctx context.Context, page, pageSize int, onlyAvailable bool) (*store.OffsetPage, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

type PricingService interface {
	ListRules(ctx context.Context) ([]models.PricingRule, error)
	SetGlobalMarkup(ctx context.Context, markup decimal.Decimal, priority int) (*models.PricingRule, int, error)
	SetCategoryMarkup(ctx context.Context, categoryID int64, markup decimal.Decimal, priority int) (*models.PricingRule, int, error)
	DeleteCategoryRule(ctx context.Context, categoryID int64) (int, error)
}

type SalesOrderSubmitter interface {
	CreateVendorSalesOrder(ctx context.Context) (*fulfillment.Result, error)
}

type ProductSyncer interface {
	Sync(ctx context.Context) (*catalog.SyncResult, error)
}

// VendorLookup covers the read-only vendor calls proxied for support staff.
type VendorLookup interface {
	GetOrderImeiNumbers(ctx context.Context, vendorOrderID string) ([]vendor.ImeiRecord, error)
	GetDeviceSpecifications(ctx context.Context, articleID string) (vendor.Specifications, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Orders    OrderService
	Products  ProductCatalog
	Pricing   PricingService
	Submitter SalesOrderSubmitter
	Syncer    ProductSyncer
	Vendor    VendorLookup
	Limiter   *ratelimit.Limiter
	DB        Pinger
	Gatherer  prometheus.Gatherer
	Log       zerolog.Logger
}

type Options struct {
	AdminToken string
	Production bool
	OrderRule  ratelimit.Rule
	AuthRule   ratelimit.Rule
}

type handler struct {
	Deps
	opts Options
}

func NewRouter(deps Deps, opts Options) http.Handler {
	h := &handler{Deps: deps, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(deps.Log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	r.Route("/orders", func(r chi.Router) {
		r.With(h.rateLimit("order_create", opts.OrderRule)).Post("/", h.createOrder)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/payment-success", h.paymentSuccess)
		r.Post("/{id}/payment-failed", h.paymentFailed)
		r.Post("/{id}/cancel", h.cancelOrder)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.adminAuth)

		r.Get("/orders", h.adminListOrders)
		r.Put("/orders/{id}/status", h.adminUpdateStatus)
		r.Post("/orders/{id}/retry-reservation", h.adminRetryReservation)

		r.Post("/vendor/create-sales-order", h.adminCreateSalesOrder)
		r.Get("/vendor/sales-orders/{vendorOrderId}/imei", h.adminOrderImei)
		r.Get("/vendor/articles/{articleId}/specifications", h.adminSpecifications)

		r.Get("/pricing", h.adminListPricing)
		r.Put("/pricing/global", h.adminSetGlobalMarkup)
		r.Put("/pricing/categories/{id}", h.adminSetCategoryMarkup)
		r.Delete("/pricing/categories/{id}", h.adminDeleteCategoryMarkup)

		r.Post("/sync/products", h.adminSyncProducts)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("health check failed")
			respondError(w, r, http.StatusServiceUnavailable, "database unavailable", nil)
			return
		}
	}
	respondOK(w, r, http.StatusOK, "ok", nil)
}
