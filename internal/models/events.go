package models

import "time"

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is persisted at checkout
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64               `json:"order_id"`
	UserID        string              `json:"user_id,omitempty"`
	Total         int64               `json:"total"`
	PaymentMethod string              `json:"payment_method"`
	Items         []OrderItemSnapshot `json:"items"`
}

// PaymentCompletedEvent published when the gateway confirms a payment.
// The settlement worker commits reserved stock on this event.
type PaymentCompletedEvent struct {
	BaseEvent
	OrderID       int64               `json:"order_id"`
	TransactionID string              `json:"transaction_id"`
	GatewayTxID   string              `json:"gateway_tx_id"`
	Amount        int64               `json:"amount"`
	Items         []OrderItemSnapshot `json:"items"`
}

// PaymentFailedEvent published when a payment terminally fails.
// The settlement worker releases reserved stock on this event.
type PaymentFailedEvent struct {
	BaseEvent
	OrderID       int64               `json:"order_id"`
	TransactionID string              `json:"transaction_id"`
	Reason        string              `json:"reason"`
	Items         []OrderItemSnapshot `json:"items"`
}
