package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	OrdersCreated        prometheus.Counter
	OrderTransitions     *prometheus.CounterVec
	Reservations         *prometheus.CounterVec
	ReleaseFailures      prometheus.Counter
	VendorRequests       *prometheus.CounterVec
	VendorLatency        *prometheus.HistogramVec
	SalesOrdersSubmitted *prometheus.CounterVec
	RateLimitDenied      *prometheus.CounterVec
	ProductsSynced       *prometheus.CounterVec
}

// New registers all collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "orders_created_total",
			Help:      "Orders committed by checkout.",
		}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "order_status_transitions_total",
			Help:      "Order status changes by target status.",
		}, []string{"to"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "vendor_reservations_total",
			Help:      "Per-item vendor reservation attempts by outcome.",
		}, []string{"outcome"}),
		ReleaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "vendor_release_failures_total",
			Help:      "Vendor reservation releases that failed and were left for manual cleanup.",
		}),
		VendorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "vendor_requests_total",
			Help:      "Vendor API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		VendorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "vendor_request_duration_seconds",
			Help:      "Vendor API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SalesOrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "vendor_sales_orders_total",
			Help:      "Vendor sales order submissions by outcome.",
		}, []string{"outcome"}),
		RateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "rate_limit_denied_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"action"}),
		ProductsSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "products_synced_total",
			Help:      "Products touched by vendor stock sync.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.OrdersCreated,
		m.OrderTransitions,
		m.Reservations,
		m.ReleaseFailures,
		m.VendorRequests,
		m.VendorLatency,
		m.SalesOrdersSubmitted,
		m.RateLimitDenied,
		m.ProductsSynced,
	)

	return m
}

// NewNop returns collectors registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
