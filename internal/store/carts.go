package store

import (
	"context"
	"fmt"

	"storefront-service/internal/models"
)

// UpsertCartItem inserts a cart row for (user, product) or adds to the
// existing quantity on conflict. Product existence is enforced by the
// foreign key on product_id.
func (s *Store) UpsertCartItem(ctx context.Context, userID string, productID int64, quantity int) (*models.CartItem, error) {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING *`

	var item models.CartItem
	if err := s.db.GetContext(ctx, &item, query, userID, productID, quantity); err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return &item, nil
}

// SetCartItemQuantity overwrites the quantity of an existing cart row
func (s *Store) SetCartItemQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE user_id = $2 AND product_id = $3",
		quantity, userID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cart item for product %d: %w", productID, ErrNotFound)
	}
	return nil
}

// DeleteCartItem removes one product from the user's cart
func (s *Store) DeleteCartItem(ctx context.Context, userID string, productID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cart item for product %d: %w", productID, ErrNotFound)
	}
	return nil
}

// ClearCart removes every cart row for the user
func (s *Store) ClearCart(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	return err
}

// ListCartItems retrieves the user's cart rows, oldest first
func (s *Store) ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE user_id = $1 ORDER BY created_at", userID)
	return items, err
}
