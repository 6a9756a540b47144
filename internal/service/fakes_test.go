package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/alenorgue/E-Comerce-API/internal/gateway"
	"github.com/alenorgue/E-Comerce-API/internal/models"
	"github.com/alenorgue/E-Comerce-API/internal/store"

	"github.com/pkg/errors"
)

// In-memory fakes for the store, gateway, cache, and publisher surfaces the
// services depend on.

type fakeCheckoutStore struct {
	products    map[int64]models.Product
	orders      map[int64]*models.Order
	ordersByKey map[string]*models.Order
	items       map[int64][]models.OrderItem
	payments    map[int64]*models.Payment
	nextID      int64
	createCalls int
	createErr   error
}

func newFakeCheckoutStore(products ...models.Product) *fakeCheckoutStore {
	f := &fakeCheckoutStore{
		products:    make(map[int64]models.Product),
		orders:      make(map[int64]*models.Order),
		ordersByKey: make(map[string]*models.Order),
		items:       make(map[int64][]models.OrderItem),
		payments:    make(map[int64]*models.Payment),
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeCheckoutStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCheckoutStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "order")
	}
	return order, nil
}

func (f *fakeCheckoutStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	return f.ordersByKey[key], nil
}

func (f *fakeCheckoutStore) CreateOrderWithPayment(_ context.Context, order *models.Order, items []models.OrderItem, payment *models.Payment) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.ordersByKey[order.IdempotencyKey]; exists {
		return errors.Wrap(store.ErrDuplicate, "idempotency key already used")
	}

	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()

	for i := range items {
		f.nextID++
		items[i].ID = f.nextID
		items[i].OrderID = order.ID
	}

	f.nextID++
	payment.ID = f.nextID
	payment.OrderID = order.ID
	order.PaymentID = sql.NullInt64{Int64: payment.ID, Valid: true}

	f.orders[order.ID] = order
	f.ordersByKey[order.IdempotencyKey] = order
	f.items[order.ID] = items
	f.payments[order.ID] = payment
	return nil
}

func (f *fakeCheckoutStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeCheckoutStore) GetPaymentByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	payment, ok := f.payments[orderID]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "payment")
	}
	return payment, nil
}

type fakeGateway struct {
	result   *gateway.CaptureResult
	err      error
	captures int
	lastReq  *gateway.CaptureRequest
}

func (f *fakeGateway) Capture(_ context.Context, req *gateway.CaptureRequest) (*gateway.CaptureResult, error) {
	f.captures++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCache struct {
	keys map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{keys: make(map[string]int64)}
}

func (f *fakeCache) SetIdempotencyKey(_ context.Context, key string, orderID int64, _ time.Duration) error {
	f.keys[key] = orderID
	return nil
}

func (f *fakeCache) GetIdempotentOrderID(_ context.Context, key string) (int64, bool, error) {
	id, ok := f.keys[key]
	return id, ok, nil
}

type fakeEvents struct {
	completed     []*models.CheckoutCompletedEvent
	failed        []*models.CheckoutFailedEvent
	cancelled     []*models.OrderCancelledEvent
	statusChanged []*models.OrderStatusChangedEvent
}

func (f *fakeEvents) PublishCheckoutCompleted(_ context.Context, e *models.CheckoutCompletedEvent) error {
	f.completed = append(f.completed, e)
	return nil
}

func (f *fakeEvents) PublishCheckoutFailed(_ context.Context, e *models.CheckoutFailedEvent) error {
	f.failed = append(f.failed, e)
	return nil
}

func (f *fakeEvents) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	f.cancelled = append(f.cancelled, e)
	return nil
}

func (f *fakeEvents) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	f.statusChanged = append(f.statusChanged, e)
	return nil
}

type fakeUserStore struct {
	users  map[int64]*models.User
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int64]*models.User)}
}

func (f *fakeUserStore) CreateUser(_ context.Context, user *models.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return errors.Wrap(store.ErrDuplicate, "email already registered")
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "user")
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errors.Wrap(store.ErrNotFound, "user")
}

func (f *fakeUserStore) UpdateUser(_ context.Context, user *models.User) error {
	if _, ok := f.users[user.ID]; !ok {
		return errors.Wrap(store.ErrNotFound, "user")
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) DeleteUser(_ context.Context, id int64) error {
	if _, ok := f.users[id]; !ok {
		return errors.Wrap(store.ErrNotFound, "user")
	}
	delete(f.users, id)
	return nil
}

// fakeCartStore mirrors the real store's contract: every mutation recomputes
// the cart total from its lines.
type fakeCartStore struct {
	products map[int64]models.Product
	carts    map[int64]*models.Cart
	nextID   int64
}

func newFakeCartStore(products ...models.Product) *fakeCartStore {
	f := &fakeCartStore{
		products: make(map[int64]models.Product),
		carts:    make(map[int64]*models.Cart),
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeCartStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "product")
	}
	return &p, nil
}

func (f *fakeCartStore) GetCartByUserID(_ context.Context, userID int64) (*models.Cart, error) {
	cart, ok := f.carts[userID]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "cart")
	}
	return cart, nil
}

func (f *fakeCartStore) AddCartItem(_ context.Context, userID int64, product *models.Product, quantity int) (*models.Cart, error) {
	cart, ok := f.carts[userID]
	if !ok {
		f.nextID++
		cart = &models.Cart{ID: f.nextID, UserID: userID}
		f.carts[userID] = cart
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == product.ID {
			cart.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		f.nextID++
		cart.Items = append(cart.Items, models.CartItem{
			ID:        f.nextID,
			CartID:    cart.ID,
			ProductID: product.ID,
			Quantity:  quantity,
			UnitPrice: product.Price,
		})
	}
	f.recompute(cart)
	return cart, nil
}

func (f *fakeCartStore) UpdateCartItemQuantity(_ context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	cart, ok := f.carts[userID]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "cart")
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = quantity
			f.recompute(cart)
			return cart, nil
		}
	}
	return nil, errors.Wrap(store.ErrNotFound, "cart line")
}

func (f *fakeCartStore) RemoveCartItem(_ context.Context, userID, productID int64) (*models.Cart, error) {
	cart, ok := f.carts[userID]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "cart")
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			f.recompute(cart)
			return cart, nil
		}
	}
	return nil, errors.Wrap(store.ErrNotFound, "cart line")
}

func (f *fakeCartStore) DeleteCart(_ context.Context, userID int64) error {
	if _, ok := f.carts[userID]; !ok {
		return errors.Wrap(store.ErrNotFound, "cart")
	}
	delete(f.carts, userID)
	return nil
}

func (f *fakeCartStore) recompute(cart *models.Cart) {
	var total int64
	for _, item := range cart.Items {
		total += int64(item.Quantity) * item.UnitPrice
	}
	cart.TotalPrice = total
}

type fakeOrderStore struct {
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	payments map[int64]*models.Payment
}

func newFakeOrderStore(orders ...*models.Order) *fakeOrderStore {
	f := &fakeOrderStore{
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
		payments: make(map[int64]*models.Payment),
	}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "order")
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) GetOrdersByUserID(_ context.Context, userID int64) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeOrderStore) GetPaymentByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	payment, ok := f.payments[orderID]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "payment")
	}
	return payment, nil
}

func (f *fakeOrderStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return errors.Wrap(store.ErrNotFound, "order")
	}
	order.Status = status
	return nil
}
