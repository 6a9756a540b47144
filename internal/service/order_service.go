package service

import (
	"context"

	"github.com/alenorgue/E-Comerce-API/internal/apperrors"
	"github.com/alenorgue/E-Comerce-API/internal/auth"
	"github.com/alenorgue/E-Comerce-API/internal/models"
	"github.com/alenorgue/E-Comerce-API/internal/store"
	"github.com/alenorgue/E-Comerce-API/internal/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// orderStore is the persistence surface the order service needs.
type orderStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
}

// orderEvents is the publishing surface for order lifecycle changes.
type orderEvents interface {
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// OrderService handles order reads and status transitions. Orders are only
// created by checkout.
type OrderService struct {
	store  orderStore
	events orderEvents
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store orderStore, events orderEvents) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// OrderDetail is an order with its items and payment, when one exists.
type OrderDetail struct {
	Order   *models.Order      `json:"order"`
	Items   []models.OrderItem `json:"items"`
	Payment *models.Payment    `json:"payment,omitempty"`
}

// UpdateStatusRequest carries an admin status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ListOrders returns the caller's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	orders, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to list orders")
	}
	return orders, nil
}

// GetOrder returns one order with items and payment, restricted to the owner
// or an admin.
func (s *OrderService) GetOrder(ctx context.Context, identity auth.Identity, orderID int64) (*OrderDetail, error) {
	order, err := s.fetchOwned(ctx, identity, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to load order items")
	}

	detail := &OrderDetail{Order: order, Items: items}
	payment, err := s.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to load payment")
	}
	if err == nil {
		detail.Payment = payment
	}
	return detail, nil
}

// CancelOrder overwrites the order's status with cancelled. The overwrite is
// unconditional, so cancelling an already-cancelled order succeeds again.
func (s *OrderService) CancelOrder(ctx context.Context, identity auth.Identity, orderID int64) (*models.Order, error) {
	order, err := s.fetchOwned(ctx, identity, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to cancel order")
	}
	order.Status = models.OrderStatusCancelled

	util.OrdersCancelledTotal.Inc()
	event := &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		UserID:    order.UserID,
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	s.logger.Info("Order cancelled", zap.Int64("order_id", orderID))
	return order, nil
}

// UpdateStatus applies an admin status transition. The value must be a member
// of the status enum and cancelled is terminal.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, req *UpdateStatusRequest) (*models.Order, error) {
	if !models.ValidOrderStatus(req.Status) {
		return nil, apperrors.Validation("status must be one of pending, completed, cancelled")
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("order not found")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to fetch order")
	}

	if order.Status == models.OrderStatusCancelled && req.Status != models.OrderStatusCancelled {
		return nil, apperrors.Validation("cancelled orders cannot change status")
	}

	oldStatus := order.Status
	if err := s.store.UpdateOrderStatus(ctx, orderID, req.Status); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to update order status")
	}
	order.Status = req.Status

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   orderID,
		OldStatus: oldStatus,
		NewStatus: req.Status,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("old_status", oldStatus),
		zap.String("new_status", req.Status))
	return order, nil
}

func (s *OrderService) fetchOwned(ctx context.Context, identity auth.Identity, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("order not found")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to fetch order")
	}
	if order.UserID != identity.UserID && !identity.IsAdmin() {
		return nil, apperrors.Forbidden("not allowed to access this order")
	}
	return order, nil
}
