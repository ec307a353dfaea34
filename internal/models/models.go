package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID                int64           `json:"id"`
	VendorArticleID   string          `json:"vendor_article_id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	CategoryID        *int64          `json:"category_id,omitempty"`
	BasePrice         decimal.Decimal `json:"base_price"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int             `json:"available_quantity"`
	IsAvailable       bool            `json:"is_available"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
}

type PricingScope string

const (
	PricingScopeGlobal   PricingScope = "global"
	PricingScopeCategory PricingScope = "category"
)

// PricingRule is a percentage markup. EntityID is nil for the global rule and the category id otherwise.
type PricingRule struct {
	ID          int64           `json:"id"`
	Scope       PricingScope    `json:"scope"`
	EntityID    *int64          `json:"entity_id,omitempty"`
	MarkupValue decimal.Decimal `json:"markup_value"`
	Priority    int             `json:"priority"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Address struct {
	ID         int64     `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Company    string    `json:"company,omitempty"`
	Street     string    `json:"street"`
	PostalCode string    `json:"postal_code"`
	City       string    `json:"city"`
	Country    string    `json:"country"`
	Phone      string    `json:"phone,omitempty"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	OrderStatusReserved       OrderStatus = "reserved"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type Order struct {
	ID                int64           `json:"id"`
	OrderNumber       string          `json:"order_number"`
	CustomerEmail     string          `json:"customer_email"`
	CustomerName      string          `json:"customer_name,omitempty"`
	Status            OrderStatus     `json:"status"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	ShippingAmount    decimal.Decimal `json:"shipping_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	BillingAddressID  int64           `json:"billing_address_id"`
	ShippingAddressID int64           `json:"shipping_address_id"`
	VendorOrderID     string          `json:"vendor_order_id,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`

	Items           []OrderItem   `json:"items,omitempty"`
	BillingAddress  *Address      `json:"billing_address,omitempty"`
	ShippingAddress *Address      `json:"shipping_address,omitempty"`
	Reservations    []Reservation `json:"reservations,omitempty"`
}

// OrderItem is a snapshot of the product at checkout time. It is never updated afterwards.
type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	VendorArticleID string          `json:"vendor_article_id"`
	ProductName     string          `json:"product_name"`
	SKU             string          `json:"sku"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ReservationStatus string

const (
	ReservationStatusPending  ReservationStatus = "pending"
	ReservationStatusReserved ReservationStatus = "reserved"
	ReservationStatusFailed   ReservationStatus = "failed"
	ReservationStatusOrdered  ReservationStatus = "ordered"
	ReservationStatusReleased ReservationStatus = "released"
)

type Reservation struct {
	ID                  int64             `json:"id"`
	OrderID             int64             `json:"order_id"`
	OrderItemID         int64             `json:"order_item_id"`
	ProductID           int64             `json:"product_id"`
	VendorArticleID     string            `json:"vendor_article_id"`
	Quantity            int               `json:"quantity"`
	Status              ReservationStatus `json:"status"`
	VendorReservationID string            `json:"vendor_reservation_id,omitempty"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}
