// Package worker runs the reconciliation loop for checkouts that captured a
// charge but were left without a complete order/payment linkage.
package worker

import (
	"context"
	"time"

	"github.com/alenorgue/E-Comerce-API/internal/broker"
	"github.com/alenorgue/E-Comerce-API/internal/models"
	"github.com/alenorgue/E-Comerce-API/internal/store"
	"github.com/alenorgue/E-Comerce-API/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// scannerStore is the persistence surface the scanner needs.
type scannerStore interface {
	FindOrdersMissingPayment(ctx context.Context, olderThan time.Time) ([]models.Order, error)
}

// scannerEvents is the publishing surface for reconciliation findings.
type scannerEvents interface {
	PublishOrderPaymentMissing(ctx context.Context, event *models.OrderPaymentMissingEvent) error
}

// ReconcileScanner periodically scans for completed orders whose payment
// reference is still null past the grace period and publishes one
// OrderPaymentMissing event per finding.
type ReconcileScanner struct {
	store    scannerStore
	events   scannerEvents
	interval time.Duration
	grace    time.Duration
	logger   *zap.Logger
}

// NewReconcileScanner creates a new reconcile scanner
func NewReconcileScanner(store scannerStore, events scannerEvents, interval, grace time.Duration) *ReconcileScanner {
	return &ReconcileScanner{
		store:    store,
		events:   events,
		interval: interval,
		grace:    grace,
		logger:   util.GetLogger(),
	}
}

// Start runs the scan loop until the context is cancelled.
func (rs *ReconcileScanner) Start(ctx context.Context) error {
	rs.logger.Info("Starting reconcile scanner",
		zap.Duration("interval", rs.interval),
		zap.Duration("grace", rs.grace))

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rs.logger.Info("Reconcile scanner stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := rs.scan(ctx); err != nil {
				rs.logger.Error("Reconcile scan failed", zap.Error(err))
			}
		}
	}
}

func (rs *ReconcileScanner) scan(ctx context.Context) error {
	cutoff := time.Now().Add(-rs.grace)
	orders, err := rs.store.FindOrdersMissingPayment(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "failed to query orders missing payment")
	}

	for _, order := range orders {
		util.ReconcileOrdersMissingPayment.Inc()
		rs.logger.Warn("Completed order has no payment link",
			zap.Int64("order_id", order.ID),
			zap.Int64("user_id", order.UserID),
			zap.Time("created_at", order.CreatedAt))

		event := &models.OrderPaymentMissingEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPaymentMissing,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
		}
		if err := rs.events.PublishOrderPaymentMissing(ctx, event); err != nil {
			rs.logger.Error("Failed to publish OrderPaymentMissing event",
				zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	return nil
}

// ReconcileWorker consumes OrderPaymentMissing events and repairs the order
// when an unlinked payment row exists; otherwise it escalates for manual
// follow-up. Events are processed at most once via the processed_events
// ledger.
type ReconcileWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        reconcileStore
	logger       *zap.Logger
}

// reconcileStore is the persistence surface the repair handler needs.
type reconcileStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	LinkOrderPayment(ctx context.Context, orderID, paymentID int64) error
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(consumer *broker.Consumer, st reconcileStore) *ReconcileWorker {
	w := &ReconcileWorker{
		consumer: consumer,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaymentMissing(w.handlePaymentMissing)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() error {
	w.logger.Info("Stopping reconcile worker")
	return w.consumer.Close()
}

func (w *ReconcileWorker) handlePaymentMissing(ctx context.Context, event *models.OrderPaymentMissingEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return errors.Wrap(err, "failed to check event processed")
	}
	if processed {
		return nil
	}

	payment, err := w.store.GetPaymentByOrderID(ctx, event.OrderID)
	switch {
	case err == nil:
		if err := w.store.LinkOrderPayment(ctx, event.OrderID, payment.ID); err != nil {
			return errors.Wrap(err, "failed to relink payment")
		}
		util.ReconcileRepairsTotal.WithLabelValues("relinked").Inc()
		w.logger.Info("Relinked payment to order",
			zap.Int64("order_id", event.OrderID),
			zap.Int64("payment_id", payment.ID))

	case errors.Is(err, store.ErrNotFound):
		// A charge may exist at the provider with no local record. This
		// cannot be repaired automatically.
		util.ReconcileRepairsTotal.WithLabelValues("unrepairable").Inc()
		w.logger.Error("Order has no payment record, manual reconciliation required",
			zap.Int64("order_id", event.OrderID),
			zap.Int64("user_id", event.UserID),
			zap.Int64("total_amount", event.TotalAmount))

	default:
		return errors.Wrap(err, "failed to look up payment")
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
