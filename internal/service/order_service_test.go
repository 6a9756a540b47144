package service

import (
	"context"
	"testing"

	"github.com/alenorgue/E-Comerce-API/internal/apperrors"
	"github.com/alenorgue/E-Comerce-API/internal/auth"
	"github.com/alenorgue/E-Comerce-API/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderFixture() *models.Order {
	return &models.Order{
		ID:          10,
		UserID:      42,
		TotalAmount: 7400,
		Status:      models.OrderStatusCompleted,
	}
}

func asOwner() auth.Identity { return auth.Identity{UserID: 42, Role: models.RoleUser} }
func asOther() auth.Identity { return auth.Identity{UserID: 7, Role: models.RoleUser} }
func asAdmin() auth.Identity { return auth.Identity{UserID: 1, Role: models.RoleAdmin} }

func TestGetOrderOwnership(t *testing.T) {
	st := newFakeOrderStore(orderFixture())
	st.payments[10] = &models.Payment{ID: 11, OrderID: 10, Amount: 7400, Status: models.PaymentStatusCompleted}
	svc := NewOrderService(st, &fakeEvents{})
	ctx := context.Background()

	detail, err := svc.GetOrder(ctx, asOwner(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), detail.Order.ID)
	require.NotNil(t, detail.Payment)
	assert.Equal(t, int64(11), detail.Payment.ID)

	_, err = svc.GetOrder(ctx, asOther(), 10)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	_, err = svc.GetOrder(ctx, asAdmin(), 10)
	assert.NoError(t, err)

	_, err = svc.GetOrder(ctx, asOwner(), 999)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestGetOrderWithoutPayment(t *testing.T) {
	svc := NewOrderService(newFakeOrderStore(orderFixture()), &fakeEvents{})

	detail, err := svc.GetOrder(context.Background(), asOwner(), 10)
	require.NoError(t, err)
	assert.Nil(t, detail.Payment)
}

func TestCancelOrderIsIdempotent(t *testing.T) {
	st := newFakeOrderStore(orderFixture())
	events := &fakeEvents{}
	svc := NewOrderService(st, events)
	ctx := context.Background()

	order, err := svc.CancelOrder(ctx, asOwner(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)

	// Cancelling again overwrites the same status and still succeeds.
	order, err = svc.CancelOrder(ctx, asOwner(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Len(t, events.cancelled, 2)
}

func TestCancelOrderForbiddenForNonOwner(t *testing.T) {
	st := newFakeOrderStore(orderFixture())
	svc := NewOrderService(st, &fakeEvents{})

	_, err := svc.CancelOrder(context.Background(), asOther(), 10)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
	assert.Equal(t, models.OrderStatusCompleted, st.orders[10].Status)
}

func TestUpdateStatusValidation(t *testing.T) {
	st := newFakeOrderStore(orderFixture())
	svc := NewOrderService(st, &fakeEvents{})
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, 10, &UpdateStatusRequest{Status: "shipped"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	order, err := svc.UpdateStatus(ctx, 10, &UpdateStatusRequest{Status: models.OrderStatusPending})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestUpdateStatusCancelledIsTerminal(t *testing.T) {
	fixture := orderFixture()
	fixture.Status = models.OrderStatusCancelled
	svc := NewOrderService(newFakeOrderStore(fixture), &fakeEvents{})

	_, err := svc.UpdateStatus(context.Background(), 10, &UpdateStatusRequest{Status: models.OrderStatusPending})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestUpdateStatusPublishesTransition(t *testing.T) {
	events := &fakeEvents{}
	svc := NewOrderService(newFakeOrderStore(orderFixture()), events)

	_, err := svc.UpdateStatus(context.Background(), 10, &UpdateStatusRequest{Status: models.OrderStatusPending})
	require.NoError(t, err)

	require.Len(t, events.statusChanged, 1)
	assert.Equal(t, models.OrderStatusCompleted, events.statusChanged[0].OldStatus)
	assert.Equal(t, models.OrderStatusPending, events.statusChanged[0].NewStatus)
}
