// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID int64  `json:"product_id"`
	ArticleID string `json:"article_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID       int64     `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	Total         string    `json:"total"`
	Items         []ItemQty `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	From          string `json:"from"`
	To            string `json:"to"`
	PaymentStatus string `json:"payment_status"`
	VendorOrderID string `json:"vendor_order_id,omitempty"`
}

// Publisher delivers an event keyed by key. Implementations must not block for long: callers
// publish on the request path after their transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// NewEnvelope wraps payload with a fresh event id and timestamp.
func NewEnvelope(producer, eventType, key string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: key,
		Payload:       raw,
	}, nil
}

type nopPublisher struct{}

// Nop discards every event. It is used when no brokers are configured.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }
