package service

import (
	"context"
	"testing"

	"github.com/alenorgue/E-Comerce-API/internal/apperrors"
	"github.com/alenorgue/E-Comerce-API/internal/gateway"
	"github.com/alenorgue/E-Comerce-API/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProducts() []models.Product {
	return []models.Product{
		{ID: 1, Name: "Keyboard", Price: 5000, Stock: 10, Category: "electronics"},
		{ID: 2, Name: "Mug", Price: 1200, Stock: 30, Category: "home"},
	}
}

func succeededCapture() *gateway.CaptureResult {
	return &gateway.CaptureResult{
		Status:        gateway.StatusSucceeded,
		TransactionID: "pi_test_1",
		Amount:        7400,
		ReceiptURL:    "https://pay.example.com/receipts/r1",
	}
}

func checkoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 2},
		},
		TotalAmount:     7400,
		PaymentMethodID: "pm_card_visa",
		IdempotencyKey:  "key-1",
	}
}

func TestCheckoutSuccessPersistsOrderAndPayment(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{result: succeededCapture()}
	events := &fakeEvents{}
	svc := NewCheckoutService(st, newFakeCache(), gw, events, "eur")

	result, err := svc.Checkout(context.Background(), 42, checkoutRequest())
	require.NoError(t, err)

	require.NotNil(t, result.Order)
	require.NotNil(t, result.Payment)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
	assert.Equal(t, int64(7400), result.Order.TotalAmount)
	assert.Equal(t, "pi_test_1", result.Payment.ProviderTxID)
	assert.Equal(t, models.PaymentStatusCompleted, result.Payment.Status)

	// Order and payment reference each other.
	require.True(t, result.Order.PaymentID.Valid)
	assert.Equal(t, result.Payment.ID, result.Order.PaymentID.Int64)
	assert.Equal(t, result.Order.ID, result.Payment.OrderID)

	// Line prices come from the catalog, not the request.
	require.Len(t, result.Items, 2)
	assert.Equal(t, int64(5000), result.Items[0].UnitPrice)
	assert.Equal(t, int64(1200), result.Items[1].UnitPrice)

	assert.Equal(t, 1, gw.captures)
	assert.Equal(t, "key-1", gw.lastReq.IdempotencyKey)
	assert.Equal(t, "eur", gw.lastReq.Currency)
	require.Len(t, events.completed, 1)
	assert.Equal(t, result.Order.ID, events.completed[0].OrderID)
}

func TestCheckoutDeclinedPersistsNothing(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{result: &gateway.CaptureResult{
		Status:         "failed",
		FailureMessage: "Your card was declined.",
	}}
	events := &fakeEvents{}
	svc := NewCheckoutService(st, newFakeCache(), gw, events, "eur")

	_, err := svc.Checkout(context.Background(), 42, checkoutRequest())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindGateway, apperrors.KindOf(err))

	assert.Equal(t, 0, st.createCalls)
	assert.Empty(t, st.orders)
	assert.Empty(t, st.payments)
	require.Len(t, events.failed, 1)
	assert.Empty(t, events.completed)
}

func TestCheckoutIndeterminateOutcome(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{err: gateway.ErrIndeterminate}
	svc := NewCheckoutService(st, newFakeCache(), gw, &fakeEvents{}, "eur")

	_, err := svc.Checkout(context.Background(), 42, checkoutRequest())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindIndeterminate, apperrors.KindOf(err))
	assert.Empty(t, st.orders)
}

func TestCheckoutIdempotentRepeatSkipsCapture(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{result: succeededCapture()}
	svc := NewCheckoutService(st, newFakeCache(), gw, &fakeEvents{}, "eur")

	first, err := svc.Checkout(context.Background(), 42, checkoutRequest())
	require.NoError(t, err)

	second, err := svc.Checkout(context.Background(), 42, checkoutRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, 1, gw.captures, "repeat must not hit the gateway again")
	assert.Equal(t, 1, st.createCalls)
}

func TestCheckoutIdempotentRepeatWithoutCache(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{result: succeededCapture()}
	svc := NewCheckoutService(st, newFakeCache(), gw, &fakeEvents{}, "eur")

	first, err := svc.Checkout(context.Background(), 42, checkoutRequest())
	require.NoError(t, err)

	// Fresh cache simulates an expired Redis entry; the unique key in the
	// orders table still catches the replay.
	cold := NewCheckoutService(st, newFakeCache(), gw, &fakeEvents{}, "eur")
	second, err := cold.Checkout(context.Background(), 42, checkoutRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, gw.captures)
}

func TestCheckoutValidation(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{result: succeededCapture()}
	svc := NewCheckoutService(st, newFakeCache(), gw, &fakeEvents{}, "eur")

	cases := []struct {
		name   string
		mutate func(*CheckoutRequest)
	}{
		{"no items", func(r *CheckoutRequest) { r.Items = nil }},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 0 }},
		{"missing product id", func(r *CheckoutRequest) { r.Items[0].ProductID = 0 }},
		{"zero total", func(r *CheckoutRequest) { r.TotalAmount = 0 }},
		{"missing payment method", func(r *CheckoutRequest) { r.PaymentMethodID = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := checkoutRequest()
			tc.mutate(req)
			_, err := svc.Checkout(context.Background(), 42, req)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}

	assert.Equal(t, 0, gw.captures, "invalid requests must not reach the gateway")
	assert.Equal(t, 0, st.createCalls)
}

func TestCheckoutUnknownProduct(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{result: succeededCapture()}
	svc := NewCheckoutService(st, newFakeCache(), gw, &fakeEvents{}, "eur")

	req := checkoutRequest()
	req.Items = append(req.Items, CheckoutItem{ProductID: 999, Quantity: 1})

	_, err := svc.Checkout(context.Background(), 42, req)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.Equal(t, 0, gw.captures)
}

func TestCheckoutGeneratesIdempotencyKey(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{result: succeededCapture()}
	svc := NewCheckoutService(st, newFakeCache(), gw, &fakeEvents{}, "eur")

	req := checkoutRequest()
	req.IdempotencyKey = ""

	result, err := svc.Checkout(context.Background(), 42, req)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Order.IdempotencyKey)
	assert.Equal(t, result.Order.IdempotencyKey, gw.lastReq.IdempotencyKey)
}

func TestCheckoutPersistRaceReturnsExisting(t *testing.T) {
	st := newFakeCheckoutStore(testProducts()...)
	gw := &fakeGateway{result: succeededCapture()}
	svc := NewCheckoutService(st, newFakeCache(), gw, &fakeEvents{}, "eur")

	first, err := svc.Checkout(context.Background(), 42, checkoutRequest())
	require.NoError(t, err)

	// Drop the key from the replay lookups so the flow reaches the insert and
	// collides on the unique constraint, as a concurrent twin would.
	winner := st.ordersByKey["key-1"]
	delete(st.ordersByKey, "key-1")
	stale := NewCheckoutService(&racingStore{fakeCheckoutStore: st, winner: winner}, newFakeCache(), gw, &fakeEvents{}, "eur")

	second, err := stale.Checkout(context.Background(), 42, checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, second.Order.ID)
}

// racingStore hides the existing order from the pre-insert replay check and
// restores it once the insert collides.
type racingStore struct {
	*fakeCheckoutStore
	winner *models.Order
	probed bool
}

func (r *racingStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	if !r.probed {
		r.probed = true
		return nil, nil
	}
	return r.winner, nil
}

func (r *racingStore) CreateOrderWithPayment(ctx context.Context, order *models.Order, items []models.OrderItem, payment *models.Payment) error {
	r.fakeCheckoutStore.ordersByKey[r.winner.IdempotencyKey] = r.winner
	return r.fakeCheckoutStore.CreateOrderWithPayment(ctx, order, items, payment)
}
