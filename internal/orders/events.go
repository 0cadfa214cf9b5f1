package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderDeleted   = "OrderDeleted"
	EventStockLow       = "StockLow"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, traceID string, correlationID int64, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: fmt.Sprint(correlationID),
		Payload:       b,
	}, nil
}

type ItemPrice struct {
	ProductID int64  `json:"product_id"`
	Qty       int    `json:"qty"`
	Price     string `json:"price"`
}

type OrderCreatedPayload struct {
	OrderID    int64       `json:"order_id"`
	CustomerID int64       `json:"customer_id"`
	Items      []ItemPrice `json:"items"`
	Total      string      `json:"total"`
}

type ItemStock struct {
	ProductID      int64 `json:"product_id"`
	Qty            int   `json:"qty"`
	RemainingStock int   `json:"remaining_stock"`
}

type OrderConfirmedPayload struct {
	OrderID    int64       `json:"order_id"`
	CustomerID int64       `json:"customer_id"`
	Items      []ItemStock `json:"items"`
	Total      string      `json:"total"`
}

type OrderDeletedPayload struct {
	OrderID int64 `json:"order_id"`
}

type StockLowPayload struct {
	ProductID int64 `json:"product_id"`
	Remaining int   `json:"remaining"`
	Threshold int   `json:"threshold"`
	OrderID   int64 `json:"order_id"`
}

// Publisher delivers envelopes to a topic. Delivery is best effort and
// happens after the database commit.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, env Envelope) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte, Envelope) error { return nil }
