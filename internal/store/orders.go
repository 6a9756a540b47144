package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/alenorgue/E-Comerce-API/internal/models"

	"github.com/pkg/errors"
)

// CreateOrderWithPayment persists a captured checkout in one transaction: the
// order, its items, the payment row, and the order's payment link commit
// together or not at all.
func (s *Store) CreateOrderWithPayment(ctx context.Context, order *models.Order, items []models.OrderItem, payment *models.Payment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (user_id, total_amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		order.UserID, order.TotalAmount, order.Status, order.IdempotencyKey)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(ErrDuplicate, "idempotency key already used")
		}
		return errors.Wrap(err, "failed to create order")
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			order.ID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return errors.Wrap(err, "failed to create order item")
		}
	}

	payment.OrderID = order.ID
	err = tx.GetContext(ctx, payment, `
		INSERT INTO payments (order_id, amount, method, status, provider_tx_id, receipt_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		payment.OrderID, payment.Amount, payment.Method, payment.Status,
		payment.ProviderTxID, payment.ReceiptURL)
	if err != nil {
		return errors.Wrap(err, "failed to create payment")
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET payment_id = $1, updated_at = NOW() WHERE id = $2",
		payment.ID, order.ID)
	if err != nil {
		return errors.Wrap(err, "failed to link payment to order")
	}
	order.PaymentID = sql.NullInt64{Int64: payment.ID, Valid: true}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "order %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by its checkout idempotency key.
// A nil order with a nil error means no such order exists.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// UpdateOrderStatus overwrites an order's status.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return errors.Wrap(err, "failed to update order status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "order %d", orderID)
	}
	return nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "payment %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByOrderID retrieves the payment recorded for an order.
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "payment for order %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// LinkOrderPayment sets the payment reference on an order that is missing one.
func (s *Store) LinkOrderPayment(ctx context.Context, orderID, paymentID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_id = $1, updated_at = NOW() WHERE id = $2 AND payment_id IS NULL",
		paymentID, orderID)
	return errors.Wrap(err, "failed to link payment")
}

// FindOrdersMissingPayment returns completed orders older than the cutoff
// whose payment reference is still null. These are reconciliation candidates.
func (s *Store) FindOrdersMissingPayment(ctx context.Context, olderThan time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE status = $1 AND payment_id IS NULL AND created_at < $2
		ORDER BY created_at`,
		models.OrderStatusCompleted, olderThan)
	return orders, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
