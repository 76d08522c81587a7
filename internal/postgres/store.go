package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/owlshop/owlshop/internal/domain"
)

// Store implements the durable ledger (orders, payments, refunds), the
// inventory gate and the cart collaborator on PostgreSQL. All cross-request
// coordination goes through database transactions and row locks so the
// system stays correct across multiple server processes.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface checks.
var (
	_ domain.LedgerStore  = (*Store)(nil)
	_ domain.PaymentStore = (*Store)(nil)
	_ domain.CartStore    = (*Store)(nil)
)

// NewStore creates a PostgreSQL-backed store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RunInTx runs fn inside a single transaction. An error from fn rolls
// everything back; nothing is persisted partially.
func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.CheckoutTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&checkoutTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// checkoutTx implements domain.CheckoutTx over one pgx transaction.
type checkoutTx struct {
	tx pgx.Tx
}

var _ domain.CheckoutTx = (*checkoutTx)(nil)
