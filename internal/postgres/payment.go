package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/owlshop/owlshop/internal/domain"
)

const paymentColumns = `id, order_id, user_id, method, amount, currency, status,
	transaction_id, payment_url, provider_data, created_at, updated_at, paid_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Method, &p.Amount, &p.Currency, &p.Status,
		&p.TransactionID, &p.PaymentURL, &p.ProviderData, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ProviderData == nil {
		p.ProviderData = map[string]any{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, user_id, method, amount, currency, status, transaction_id, payment_url, provider_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.OrderID, p.UserID, p.Method, p.Amount, p.Currency, p.Status, p.TransactionID, p.PaymentURL, p.ProviderData,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	const op = "postgres.GetPayment"
	p, err := scanPayment(s.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "payment", id.String())
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (s *Store) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	const op = "postgres.GetPaymentByTransactionID"
	p, err := scanPayment(s.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE transaction_id = $1`,
		transactionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "payment", transactionID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (s *Store) MarkPaymentInitiated(ctx context.Context, id uuid.UUID, transactionID, paymentURL string, providerData map[string]any) error {
	if providerData == nil {
		providerData = map[string]any{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, transaction_id = $3, payment_url = $4,
		    provider_data = provider_data || $5::jsonb, updated_at = now()
		WHERE id = $1`,
		id, domain.PaymentProcessing, transactionID, paymentURL, providerData,
	)
	if err != nil {
		return fmt.Errorf("mark payment initiated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("postgres.MarkPaymentInitiated", "payment", id.String())
	}
	return nil
}

// MarkPaymentCompleted flips the payment to completed exactly once and
// cascades the order's payment_status to paid in the same transaction.
// The order row lock serializes completion against cancellation: a
// cancel committing first makes the completion fail with
// ErrOrderCancelled, and concurrent deliveries converge behind the lock
// (the first writer wins, later ones see alreadyCompleted=true and
// change nothing).
func (s *Store) MarkPaymentCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "postgres.MarkPaymentCompleted"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		orderID       int64
		orderStatus   domain.OrderStatus
		paymentStatus domain.PaymentState
	)
	err = tx.QueryRow(ctx, `
		SELECT o.id, o.status, p.status
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE p.id = $1
		FOR UPDATE OF o`,
		id,
	).Scan(&orderID, &orderStatus, &paymentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.NotFound(op, "payment", id.String())
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if paymentStatus == domain.PaymentCompleted {
		return true, nil
	}
	if orderStatus == domain.OrderStatusCancelled {
		return false, domain.ErrOrderCancelled
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, paid_at = now(), updated_at = now()
		WHERE id = $1`,
		id, domain.PaymentCompleted,
	); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET payment_status = $2, updated_at = now()
		WHERE id = $1`,
		orderID, domain.OrderPaid,
	); err != nil {
		return false, fmt.Errorf("%s: cascade order: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%s: commit: %w", op, err)
	}
	return false, nil
}

// MarkPaymentFailed records the failure reason in the provider data
// audit trail. Completed and refunded payments are left untouched so a
// straggling failure delivery can never regress a settled payment.
func (s *Store) MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    provider_data = provider_data || jsonb_build_object('failure_reason', $3::text),
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ($4, $5)`,
		id, domain.PaymentFailed, reason, domain.PaymentCompleted, domain.PaymentRefunded,
	)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

func (s *Store) MergeProviderData(ctx context.Context, id uuid.UUID, data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET provider_data = provider_data || $2::jsonb, updated_at = now()
		WHERE id = $1`,
		id, data,
	)
	if err != nil {
		return fmt.Errorf("merge provider data: %w", err)
	}
	return nil
}

func (s *Store) CreateRefund(ctx context.Context, r *domain.PaymentRefund) error {
	if r.ProviderData == nil {
		r.ProviderData = map[string]any{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payment_refunds (payment_id, amount, reason, status, refund_id, provider_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		r.PaymentID, r.Amount, r.Reason, r.Status, r.RefundID, r.ProviderData,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// CompleteRefund records the provider refund reference in the same
// transaction that settles the refund row. The parent payment flips to
// refunded only when the refund covers the full charge; a partial
// refund leaves the payment completed.
func (s *Store) CompleteRefund(ctx context.Context, refundID int64, providerRefundID string, providerData map[string]any) error {
	const op = "postgres.CompleteRefund"
	if providerData == nil {
		providerData = map[string]any{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		paymentID    uuid.UUID
		refundAmount int64
	)
	err = tx.QueryRow(ctx, `
		UPDATE payment_refunds
		SET status = $2, refund_id = $3, provider_data = provider_data || $4::jsonb, updated_at = now()
		WHERE id = $1
		RETURNING payment_id, amount`,
		refundID, domain.RefundCompleted, providerRefundID, providerData,
	).Scan(&paymentID, &refundAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound(op, "refund", fmt.Sprintf("%d", refundID))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payments SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3 AND amount = $4`,
		paymentID, domain.PaymentRefunded, domain.PaymentCompleted, refundAmount,
	); err != nil {
		return fmt.Errorf("%s: cascade payment: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Store) FailRefund(ctx context.Context, refundID int64, errDetail string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payment_refunds
		SET status = $2,
		    provider_data = provider_data || jsonb_build_object('error', $3::text),
		    updated_at = now()
		WHERE id = $1`,
		refundID, domain.RefundFailed, errDetail,
	)
	if err != nil {
		return fmt.Errorf("fail refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("postgres.FailRefund", "refund", fmt.Sprintf("%d", refundID))
	}
	return nil
}
