package service

import (
	"context"
	"time"

	"github.com/alenorgue/E-Comerce-API/internal/apperrors"
	"github.com/alenorgue/E-Comerce-API/internal/gateway"
	"github.com/alenorgue/E-Comerce-API/internal/models"
	"github.com/alenorgue/E-Comerce-API/internal/store"
	"github.com/alenorgue/E-Comerce-API/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

// checkoutStore is the persistence surface the orchestrator needs.
type checkoutStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	CreateOrderWithPayment(ctx context.Context, order *models.Order, items []models.OrderItem, payment *models.Payment) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
}

// idempotencyCache is the Redis fast path in front of the orders table's
// unique idempotency key. Cache faults are soft.
type idempotencyCache interface {
	SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	GetIdempotentOrderID(ctx context.Context, key string) (int64, bool, error)
}

// checkoutEvents is the publishing surface for checkout outcomes.
type checkoutEvents interface {
	PublishCheckoutCompleted(ctx context.Context, event *models.CheckoutCompletedEvent) error
	PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error
}

// CheckoutService orchestrates cart contents into a captured payment and a
// persisted order. Nothing is written unless the gateway reports success, and
// the order, its items, the payment, and the link between them commit in one
// transaction.
type CheckoutService struct {
	store    checkoutStore
	cache    idempotencyCache
	gateway  gateway.PaymentGateway
	events   checkoutEvents
	currency string
	logger   *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	store checkoutStore,
	cache idempotencyCache,
	gw gateway.PaymentGateway,
	events checkoutEvents,
	currency string,
) *CheckoutService {
	return &CheckoutService{
		store:    store,
		cache:    cache,
		gateway:  gw,
		events:   events,
		currency: currency,
		logger:   util.GetLogger(),
	}
}

// CheckoutItem is one purchased line in a checkout request.
type CheckoutItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CheckoutRequest carries the checkout payload. TotalAmount is in minor
// currency units and is the amount charged.
type CheckoutRequest struct {
	Items           []CheckoutItem `json:"products" binding:"required,min=1"`
	TotalAmount     int64          `json:"total_price" binding:"required"`
	PaymentMethodID string         `json:"payment_method_id" binding:"required"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
}

// CheckoutResult is the response for a persisted checkout.
type CheckoutResult struct {
	Order   *models.Order      `json:"order"`
	Items   []models.OrderItem `json:"items"`
	Payment *models.Payment    `json:"payment"`
}

// Checkout validates the request, captures the payment, and persists the
// order and payment atomically.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	if err := validateCheckout(req); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	if result, err := s.findExisting(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if result != nil {
		s.logger.Info("Duplicate checkout request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", result.Order.ID))
		return result, nil
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	capture, err := s.capture(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	result, err := s.persist(ctx, userID, req, products, capture)
	if err != nil {
		return nil, err
	}

	util.CheckoutsCompletedTotal.Inc()
	if err := s.cache.SetIdempotencyKey(ctx, req.IdempotencyKey, result.Order.ID, idempotencyTTL); err != nil {
		s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
	}

	event := &models.CheckoutCompletedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeCheckoutCompleted),
		OrderID:     result.Order.ID,
		UserID:      userID,
		PaymentID:   result.Payment.ID,
		TotalAmount: result.Order.TotalAmount,
		TxID:        result.Payment.ProviderTxID,
	}
	if err := s.events.PublishCheckoutCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish CheckoutCompleted event", zap.Error(err))
	}

	s.logger.Info("Checkout completed",
		zap.Int64("order_id", result.Order.ID),
		zap.Int64("payment_id", result.Payment.ID),
		zap.String("tx_id", result.Payment.ProviderTxID))
	return result, nil
}

func validateCheckout(req *CheckoutRequest) error {
	if len(req.Items) == 0 {
		return apperrors.Validation("products must not be empty")
	}
	for _, item := range req.Items {
		if item.ProductID == 0 {
			return apperrors.Validation("each product needs a product_id")
		}
		if item.Quantity < 1 {
			return apperrors.Validation("quantity must be at least 1")
		}
	}
	if req.TotalAmount < 1 {
		return apperrors.Validation("total_price must be at least 1")
	}
	if req.PaymentMethodID == "" {
		return apperrors.Validation("payment_method_id is required")
	}
	return nil
}

// findExisting returns the previously persisted result for an idempotency
// key, or nil when the key is fresh.
func (s *CheckoutService) findExisting(ctx context.Context, key string) (*CheckoutResult, error) {
	if orderID, hit, err := s.cache.GetIdempotentOrderID(ctx, key); err != nil {
		s.logger.Warn("Idempotency cache read failed", zap.Error(err))
	} else if hit {
		order, err := s.store.GetOrderByID(ctx, orderID)
		if err == nil {
			return s.loadResult(ctx, order)
		}
		s.logger.Warn("Idempotency cache pointed at missing order",
			zap.Int64("order_id", orderID), zap.Error(err))
	}

	order, err := s.store.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to check idempotency")
	}
	if order == nil {
		return nil, nil
	}
	return s.loadResult(ctx, order)
}

func (s *CheckoutService) loadResult(ctx context.Context, order *models.Order) (*CheckoutResult, error) {
	items, err := s.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to load order items")
	}
	payment, err := s.store.GetPaymentByOrderID(ctx, order.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to load payment")
	}
	return &CheckoutResult{Order: order, Items: items, Payment: payment}, nil
}

func (s *CheckoutService) resolveProducts(ctx context.Context, items []CheckoutItem) (map[int64]*models.Product, error) {
	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to fetch products")
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}
	for _, item := range items {
		if _, ok := productMap[item.ProductID]; !ok {
			return nil, apperrors.Newf(apperrors.KindNotFound, "product %d not found", item.ProductID)
		}
	}
	return productMap, nil
}

// capture runs the gateway call. A declined capture and an unknown outcome
// are distinct failures; neither persists anything.
func (s *CheckoutService) capture(ctx context.Context, userID int64, req *CheckoutRequest) (*gateway.CaptureResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.capture")
	defer span.End()

	util.CaptureAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.CaptureLatency.Observe(time.Since(start).Seconds())
	}()

	capture, err := s.gateway.Capture(ctx, &gateway.CaptureRequest{
		Amount:          req.TotalAmount,
		Currency:        s.currency,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrIndeterminate) {
			util.CaptureOutcomesTotal.WithLabelValues("indeterminate").Inc()
			util.CheckoutsFailedTotal.WithLabelValues("capture_indeterminate").Inc()
			s.logger.Error("Capture outcome unknown, reconciliation may be required",
				zap.Int64("user_id", userID),
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
			return nil, apperrors.Wrap(err, apperrors.KindIndeterminate,
				"payment outcome unknown, retry with the same idempotency key")
		}
		util.CaptureOutcomesTotal.WithLabelValues("error").Inc()
		util.CheckoutsFailedTotal.WithLabelValues("capture_error").Inc()
		return nil, apperrors.Wrap(err, apperrors.KindGateway, "payment capture failed")
	}

	util.CaptureOutcomesTotal.WithLabelValues(capture.Status).Inc()

	if !capture.Succeeded() {
		util.CheckoutsFailedTotal.WithLabelValues("capture_declined").Inc()
		s.logger.Warn("Payment declined",
			zap.Int64("user_id", userID),
			zap.String("status", capture.Status),
			zap.String("detail", capture.FailureMessage))

		event := &models.CheckoutFailedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeCheckoutFailed),
			UserID:        userID,
			TotalAmount:   req.TotalAmount,
			GatewayStatus: capture.Status,
		}
		if err := s.events.PublishCheckoutFailed(ctx, event); err != nil {
			s.logger.Error("Failed to publish CheckoutFailed event", zap.Error(err))
		}
		return nil, apperrors.Newf(apperrors.KindGateway, "payment failed: %s", capture.Status)
	}

	return capture, nil
}

// persist writes the order, its items, the payment, and the link between them
// in a single transaction.
func (s *CheckoutService) persist(ctx context.Context, userID int64, req *CheckoutRequest, products map[int64]*models.Product, capture *gateway.CaptureResult) (*CheckoutResult, error) {
	order := &models.Order{
		UserID:         userID,
		TotalAmount:    req.TotalAmount,
		Status:         models.OrderStatusCompleted,
		IdempotencyKey: req.IdempotencyKey,
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: products[item.ProductID].Price,
		})
	}

	amount := capture.Amount
	if amount == 0 {
		amount = req.TotalAmount
	}
	payment := &models.Payment{
		Amount:       amount,
		Method:       models.PaymentMethodStripe,
		Status:       models.PaymentStatusCompleted,
		ProviderTxID: capture.TransactionID,
		ReceiptURL:   capture.ReceiptURL,
	}

	if err := s.store.CreateOrderWithPayment(ctx, order, items, payment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Concurrent request with the same key won the race.
			existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return s.loadResult(ctx, existing)
			}
		}
		// The charge is captured but nothing was persisted. The idempotency
		// key on the gateway side keeps a client retry from double-charging.
		util.CheckoutsFailedTotal.WithLabelValues("persist_failed").Inc()
		s.logger.Error("Captured payment could not be persisted",
			zap.Int64("user_id", userID),
			zap.String("tx_id", capture.TransactionID),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to persist order")
	}

	return &CheckoutResult{Order: order, Items: items, Payment: payment}, nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
