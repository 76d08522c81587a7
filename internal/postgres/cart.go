package postgres

import (
	"context"
	"fmt"

	"github.com/owlshop/owlshop/internal/domain"
)

// GetItems returns the user's cart lines, ordered by product id for a
// stable lock-acquisition sequence downstream.
func (s *Store) GetItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY product_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("get cart items: scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	return items, nil
}

// ClearCart runs inside the checkout transaction so the cart empties
// atomically with order creation.
func (t *checkoutTx) ClearCart(ctx context.Context, userID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
