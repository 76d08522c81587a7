package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/owlshop/owlshop/internal/domain"
)

// LockProducts acquires FOR UPDATE row locks on the given products.
// Ids are locked in ascending order so concurrent checkouts sharing
// products always acquire locks in the same sequence.
func (t *checkoutTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	if len(ids) == 0 {
		return map[int64]domain.Product{}, nil
	}
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rows, err := t.tx.Query(ctx, `
		SELECT id, name, image_url, price, sale_price, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`,
		sorted,
	)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]domain.Product, len(sorted))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.ImageURL, &p.Price, &p.SalePrice, &p.Stock); err != nil {
			return nil, fmt.Errorf("lock products: scan: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	return products, nil
}

// ReserveStock decrements stock with a relative, guarded update. The
// guard re-checks availability at write time so the decrement can never
// drive stock negative, whatever the caller read earlier.
func (t *checkoutTx) ReserveStock(ctx context.Context, productID int64, qty int32) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`,
		productID, qty,
	)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutOfStock
	}
	return nil
}

// RestoreStock returns reserved units on cancellation. Strictly additive;
// stock is never clamped to an assumed ceiling.
func (t *checkoutTx) RestoreStock(ctx context.Context, productID int64, qty int32) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1`,
		productID, qty,
	)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}
