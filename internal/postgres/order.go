package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/owlshop/owlshop/internal/domain"
)

const orderColumns = `id, user_id, order_number, status, payment_method, payment_status,
	recipient_name, phone, email, address, city, district, ward, note,
	subtotal, shipping_fee, discount, total, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.RecipientName, &o.Phone, &o.Email, &o.Address, &o.City, &o.District, &o.Ward, &o.Note,
		&o.Subtotal, &o.ShippingFee, &o.Discount, &o.Total, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *checkoutTx) CreateOrder(ctx context.Context, o *domain.Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (
			user_id, order_number, status, payment_method, payment_status,
			recipient_name, phone, email, address, city, district, ward, note,
			subtotal, shipping_fee, discount, total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.OrderNumber, o.Status, o.PaymentMethod, o.PaymentStatus,
		o.RecipientName, o.Phone, o.Email, o.Address, o.City, o.District, o.Ward, o.Note,
		o.Subtotal, o.ShippingFee, o.Discount, o.Total,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (t *checkoutTx) CreateOrderItems(ctx context.Context, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO order_items (order_id, product_id, product_name, product_image, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			it.OrderID, it.ProductID, it.ProductName, it.ProductImage, it.Quantity, it.Price,
		)
	}
	res := t.tx.SendBatch(ctx, batch)
	defer res.Close()
	for range items {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
	}
	return nil
}

func (t *checkoutTx) SetOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1`,
		orderID, status,
	)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("postgres.SetOrderStatus", "order", fmt.Sprintf("%d", orderID))
	}
	return nil
}

func (t *checkoutTx) GetUserOrderByNumberForUpdate(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error) {
	const op = "postgres.GetUserOrderByNumberForUpdate"
	o, err := scanOrder(t.tx.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND order_number = $2
		FOR UPDATE`,
		userID, orderNumber,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "order", orderNumber)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items, err := loadOrderItems(ctx, t.tx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	o.Items = items
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	const op = "postgres.GetOrder"
	o, err := scanOrder(s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1`,
		orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "order", fmt.Sprintf("%d", orderID))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items, err := loadOrderItems(ctx, s.pool, o.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	o.Items = items
	return o, nil
}

func (s *Store) GetUserOrderByNumber(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error) {
	const op = "postgres.GetUserOrderByNumber"
	o, err := scanOrder(s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND order_number = $2`,
		userID, orderNumber,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "order", orderNumber)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items, err := loadOrderItems(ctx, s.pool, o.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	o.Items = items
	return o, nil
}

func (s *Store) ListUserOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list user orders: scan: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return orders, nil
}

// querier covers both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadOrderItems(ctx context.Context, q querier, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_image, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductImage, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
