package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/telemetry"
)

// OrderService exposes the buyer-facing order operations.
type OrderService interface {
	// List returns the user's orders, newest first.
	List(ctx context.Context, userID int64) ([]domain.Order, error)

	// Get loads one order with its items, scoped to the owning user.
	Get(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error)

	// Cancel cancels a pending or confirmed order and returns reserved
	// stock. Payments are untouched; straggling payment confirmations are
	// resolved by reconciliation.
	Cancel(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error)
}

type orderService struct {
	ledger  domain.LedgerStore
	metrics *telemetry.BusinessMetrics
	logger  zerolog.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(ledger domain.LedgerStore, metrics *telemetry.BusinessMetrics, logger zerolog.Logger) OrderService {
	return &orderService{
		ledger:  ledger,
		metrics: metrics,
		logger:  logger.With().Str("component", "orders").Logger(),
	}
}

func (s *orderService) List(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.ledger.ListUserOrders(ctx, userID)
}

func (s *orderService) Get(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error) {
	return s.ledger.GetUserOrderByNumber(ctx, userID, orderNumber)
}

// Cancel restores stock and flips the order to cancelled in one
// transaction. Restoration is strictly additive and only covers items
// whose product still exists; snapshots of deleted products have nothing
// to restore into.
func (s *orderService) Cancel(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error) {
	const op = "service.CancelOrder"

	var order *domain.Order
	err := s.ledger.RunInTx(ctx, func(tx domain.CheckoutTx) error {
		o, err := tx.GetUserOrderByNumberForUpdate(ctx, userID, orderNumber)
		if err != nil {
			return err
		}
		if !o.CanCancel() {
			return domain.Conflict(op, "order can no longer be cancelled")
		}

		for _, it := range o.Items {
			if it.ProductID == nil {
				continue
			}
			if err := tx.RestoreStock(ctx, *it.ProductID, it.Quantity); err != nil {
				return err
			}
			s.logger.Warn().
				Str("order_number", o.OrderNumber).
				Int64("product_id", *it.ProductID).
				Int32("quantity", it.Quantity).
				Msg("stock restored on cancellation")
		}

		if err := tx.SetOrderStatus(ctx, o.ID, domain.OrderStatusCancelled); err != nil {
			return err
		}
		o.Status = domain.OrderStatusCancelled
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrdersCancelled.WithLabelValues(string(order.PaymentMethod)).Inc()
	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Int64("user_id", userID).
		Msg("order cancelled")
	return order, nil
}
