// Package events defines the message contracts carried over the bus.
// Every event is immutable and identified by a unique event_id; consumers
// must treat a redelivered event_id as a no-op.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated      = "OrderCreated"
	TypeOrderCancelled    = "OrderCancelled"
	TypePaymentSucceeded  = "PaymentSucceeded"
	TypeStockFreezeFailed = "StockFreezeFailed"
)

const (
	TopicOrderEvents   = "order.events"
	TopicPaymentEvents = "payment.events"
	TopicStockEvents   = "stock.events"
)

// Envelope wraps every payload on the wire.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	Payload    json.RawMessage `json:"payload"`
}

type OrderCreated struct {
	OrderID    string         `json:"order_id"`
	OrderNo    string         `json:"order_no"`
	UserID     string         `json:"user_id"`
	TotalCents int64          `json:"total_cents"`
	Items      map[string]int `json:"items"` // product_id -> qty
}

type OrderCancelled struct {
	OrderID string         `json:"order_id"`
	OrderNo string         `json:"order_no"`
	Reason  string         `json:"reason"`
	Items   map[string]int `json:"items"`
}

type PaymentSucceeded struct {
	PaymentID   string         `json:"payment_id"`
	OrderID     string         `json:"order_id"`
	OrderNo     string         `json:"order_no"`
	UserID      string         `json:"user_id"`
	AmountCents int64          `json:"amount_cents"`
	Items       map[string]int `json:"items"`
}

type StockFreezeFailed struct {
	OrderID string `json:"order_id"`
	OrderNo string `json:"order_no"`
	Reason  string `json:"reason"`
}

// NewEnvelope stamps a fresh event id; payload must be JSON-marshalable.
func NewEnvelope(eventType, producer string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Producer:   producer,
		Payload:    raw,
	}, nil
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Unwrap decodes an envelope payload into its concrete type.
func Unwrap[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
