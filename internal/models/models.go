package models

import (
	"database/sql"
	"time"
)

// User represents a registered account. The password hash is never serialized.
type User struct {
	ID           int64          `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Role         string         `db:"role" json:"role"`
	PhoneNumber  sql.NullString `db:"phone_number" json:"phone_number,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Product represents a catalog entry. Price is in minor currency units.
type Product struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Price       int64     `db:"price" json:"price"`
	Category    string    `db:"category" json:"category"`
	Stock       int       `db:"stock" json:"stock"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProductCategories is the closed set of allowed categories.
var ProductCategories = []string{"electronics", "clothing", "home", "books", "toys"}

// Cart holds one user's pending purchases. TotalPrice is recomputed from the
// items inside the same transaction as every mutation.
type Cart struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	TotalPrice int64      `db:"total_price" json:"total_price"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// CartItem is a cart line. UnitPrice is captured from the product at add time.
type CartItem struct {
	ID        int64 `db:"id" json:"id"`
	CartID    int64 `db:"cart_id" json:"-"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Order is an immutable purchase snapshot. Only the status changes after
// creation; PaymentID is linked in the same transaction that creates the
// payment row.
type Order struct {
	ID             int64         `db:"id" json:"id"`
	UserID         int64         `db:"user_id" json:"user_id"`
	TotalAmount    int64         `db:"total_amount" json:"total_amount"`
	Status         string        `db:"status" json:"status"`
	PaymentID      sql.NullInt64 `db:"payment_id" json:"payment_id,omitempty"`
	IdempotencyKey string        `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// OrderItem is a purchased line within an order.
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Payment records one gateway capture for one order.
type Payment struct {
	ID           int64     `db:"id" json:"id"`
	OrderID      int64     `db:"order_id" json:"order_id"`
	Amount       int64     `db:"amount" json:"amount"`
	Method       string    `db:"method" json:"method"`
	Status       string    `db:"status" json:"status"`
	ProviderTxID string    `db:"provider_tx_id" json:"transaction_id"`
	ReceiptURL   string    `db:"receipt_url" json:"receipt_url,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// PaymentMethodStripe is the only supported capture method.
const PaymentMethodStripe = "stripe"

// ValidOrderStatus reports whether s is a member of the order status enum.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidCategory reports whether c is an allowed product category.
func ValidCategory(c string) bool {
	for _, cat := range ProductCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// ProcessedEvent for consumer-side idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
