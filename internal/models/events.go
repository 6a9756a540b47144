package models

import "time"

// Event types
const (
	EventTypeCheckoutCompleted   = "CHECKOUT_COMPLETED"
	EventTypeCheckoutFailed      = "CHECKOUT_FAILED"
	EventTypeOrderCancelled      = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
	EventTypeOrderPaymentMissing = "ORDER_PAYMENT_MISSING"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutCompletedEvent published after a successful capture is persisted
type CheckoutCompletedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	UserID      int64  `json:"user_id"`
	PaymentID   int64  `json:"payment_id"`
	TotalAmount int64  `json:"total_amount"`
	TxID        string `json:"tx_id"`
}

// CheckoutFailedEvent published when the gateway declines a capture
type CheckoutFailedEvent struct {
	BaseEvent
	UserID        int64  `json:"user_id"`
	TotalAmount   int64  `json:"total_amount"`
	GatewayStatus string `json:"gateway_status"`
}

// OrderCancelledEvent published when an order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
	UserID  int64 `json:"user_id"`
}

// OrderStatusChangedEvent published on an admin status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// OrderPaymentMissingEvent published by the reconciliation scanner for a
// completed order whose payment link is still null past the grace period
type OrderPaymentMissingEvent struct {
	BaseEvent
	OrderID     int64 `json:"order_id"`
	UserID      int64 `json:"user_id"`
	TotalAmount int64 `json:"total_amount"`
}
