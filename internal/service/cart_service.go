package service

import (
	"context"

	"github.com/alenorgue/E-Comerce-API/internal/apperrors"
	"github.com/alenorgue/E-Comerce-API/internal/models"
	"github.com/alenorgue/E-Comerce-API/internal/store"
	"github.com/alenorgue/E-Comerce-API/internal/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// cartStore is the persistence surface the cart service needs. Every mutation
// recomputes the cart total inside its own transaction.
type cartStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error)
	AddCartItem(ctx context.Context, userID int64, product *models.Product, quantity int) (*models.Cart, error)
	UpdateCartItemQuantity(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error)
	RemoveCartItem(ctx context.Context, userID, productID int64) (*models.Cart, error)
	DeleteCart(ctx context.Context, userID int64) error
}

// CartService handles cart mutations.
type CartService struct {
	store  cartStore
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store cartStore) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// AddItemRequest carries an add-to-cart payload.
type AddItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

// UpdateQuantityRequest carries a line quantity change.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// AddItem adds a product to the user's cart, creating the cart lazily.
func (s *CartService) AddItem(ctx context.Context, userID int64, req *AddItemRequest) (*models.Cart, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return nil, apperrors.Validation("quantity must be at least 1")
	}

	product, err := s.store.GetProductByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("product not found, cannot add to cart")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to fetch product")
	}

	cart, err := s.store.AddCartItem(ctx, userID, product, quantity)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to add product to cart")
	}

	s.logger.Info("Product added to cart",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", product.ID),
		zap.Int("quantity", quantity))
	return cart, nil
}

// GetCart returns the user's cart with its lines.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("cart not found")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to fetch cart")
	}
	return cart, nil
}

// UpdateItemQuantity sets the quantity of an existing cart line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID int64, req *UpdateQuantityRequest) (*models.Cart, error) {
	if req.Quantity < 1 {
		return nil, apperrors.Validation("quantity must be at least 1")
	}

	cart, err := s.store.UpdateCartItemQuantity(ctx, userID, productID, req.Quantity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("product not found in cart")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to update cart")
	}
	return cart, nil
}

// RemoveItem deletes a line from the user's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	cart, err := s.store.RemoveCartItem(ctx, userID, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("product not found in cart")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to remove product from cart")
	}
	return cart, nil
}

// Clear deletes the user's cart entirely.
func (s *CartService) Clear(ctx context.Context, userID int64) error {
	if err := s.store.DeleteCart(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("cart not found")
		}
		return apperrors.Wrap(err, apperrors.KindInternal, "failed to clear cart")
	}

	s.logger.Info("Cart cleared", zap.Int64("user_id", userID))
	return nil
}
