package store

import (
	"context"
	"database/sql"

	"github.com/alenorgue/E-Comerce-API/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Cart mutations run inside a single transaction that rewrites the lines and
// then recomputes total_price from them before commit. The stored total can
// therefore never drift from the sum of the lines.

// GetCartByUserID retrieves a user's cart with its items.
func (s *Store) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "cart for user %d", userID)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &cart.Items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cart.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load cart items")
	}
	return &cart, nil
}

// AddCartItem adds quantity of a product to the user's cart, creating the
// cart lazily and merging into an existing line when one exists.
func (s *Store) AddCartItem(ctx context.Context, userID int64, product *models.Product, quantity int) (*models.Cart, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cartID, err := lockOrCreateCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE cart_items SET quantity = quantity + $1 WHERE cart_id = $2 AND product_id = $3",
		quantity, cartID, product.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update cart line")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO cart_items (cart_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4)",
			cartID, product.ID, quantity, product.Price)
		if err != nil {
			return nil, errors.Wrap(err, "failed to insert cart line")
		}
	}

	if err := finishCartTx(ctx, tx, cartID); err != nil {
		return nil, err
	}
	return s.GetCartByUserID(ctx, userID)
}

// UpdateCartItemQuantity sets the quantity on an existing cart line.
func (s *Store) UpdateCartItemQuantity(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cartID, err := lockCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND product_id = $3",
		quantity, cartID, productID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update cart line")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.Wrapf(ErrNotFound, "product %d in cart", productID)
	}

	if err := finishCartTx(ctx, tx, cartID); err != nil {
		return nil, err
	}
	return s.GetCartByUserID(ctx, userID)
}

// RemoveCartItem deletes a line from the user's cart.
func (s *Store) RemoveCartItem(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cartID, err := lockCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to delete cart line")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.Wrapf(ErrNotFound, "product %d in cart", productID)
	}

	if err := finishCartTx(ctx, tx, cartID); err != nil {
		return nil, err
	}
	return s.GetCartByUserID(ctx, userID)
}

// DeleteCart removes the user's cart and all of its lines.
func (s *Store) DeleteCart(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM carts WHERE user_id = $1", userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete cart")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "cart for user %d", userID)
	}
	return nil
}

func lockCart(ctx context.Context, tx *sqlx.Tx, userID int64) (int64, error) {
	var cartID int64
	err := tx.GetContext(ctx, &cartID,
		"SELECT id FROM carts WHERE user_id = $1 FOR UPDATE", userID)
	if err == sql.ErrNoRows {
		return 0, errors.Wrapf(ErrNotFound, "cart for user %d", userID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to lock cart")
	}
	return cartID, nil
}

func lockOrCreateCart(ctx context.Context, tx *sqlx.Tx, userID int64) (int64, error) {
	cartID, err := lockCart(ctx, tx, userID)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	err = tx.GetContext(ctx, &cartID,
		"INSERT INTO carts (user_id, total_price) VALUES ($1, 0) RETURNING id", userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create cart")
	}
	return cartID, nil
}

func finishCartTx(ctx context.Context, tx *sqlx.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE carts
		SET total_price = COALESCE(
			(SELECT SUM(quantity * unit_price) FROM cart_items WHERE cart_id = $1), 0),
		    updated_at = NOW()
		WHERE id = $1`, cartID)
	if err != nil {
		return errors.Wrap(err, "failed to recompute cart total")
	}
	return tx.Commit()
}
