package domain

import (
	"context"

	"github.com/google/uuid"
)

// ErrOutOfStock is returned by the inventory gate when a reservation
// exceeds the stock available at lock-acquisition time.
var ErrOutOfStock = &Error{Code: ECONFLICT, Message: "insufficient stock"}

// ErrOrderCancelled is returned by MarkPaymentCompleted when the parent
// order is cancelled at completion time. The check runs under the order
// row lock, so a cancellation committing mid-reconciliation can never be
// overtaken by the completion.
var ErrOrderCancelled = &Error{Code: ECONFLICT, Message: "order cancelled before payment confirmation"}

// ShippingInfo is the delivery destination captured at checkout.
type ShippingInfo struct {
	RecipientName string
	Phone         string
	Email         string
	Address       string
	City          string
	District      string
	Ward          string
	Note          string
}

// CheckoutTx is the transactional surface of the ledger store. All methods
// run inside one database transaction; an error from the callback passed
// to RunInTx rolls the whole transaction back.
type CheckoutTx interface {
	// LockProducts acquires row locks on the given products in ascending
	// id order (stable lock ordering prevents deadlock between concurrent
	// checkouts sharing products) and returns their live state.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)

	// CreateOrder inserts the order row and fills o.ID and timestamps.
	CreateOrder(ctx context.Context, o *Order) error

	// CreateOrderItems inserts line snapshots for an order.
	CreateOrderItems(ctx context.Context, items []OrderItem) error

	// ReserveStock decrements stock by a relative update
	// (stock = stock - qty, guarded by stock >= qty).
	// Returns ErrOutOfStock when the guard fails.
	ReserveStock(ctx context.Context, productID int64, qty int32) error

	// RestoreStock is the inverse of ReserveStock, strictly additive.
	RestoreStock(ctx context.Context, productID int64, qty int32) error

	// SetOrderStatus updates the fulfillment status.
	SetOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error

	// GetUserOrderByNumberForUpdate loads an order with items under a row
	// lock, scoped to the owning user.
	GetUserOrderByNumberForUpdate(ctx context.Context, userID int64, orderNumber string) (*Order, error)

	// ClearCart empties the user's cart.
	ClearCart(ctx context.Context, userID int64) error
}

// LedgerStore provides durable Order/OrderItem records and the
// transaction boundary used by checkout and cancellation.
type LedgerStore interface {
	// RunInTx runs fn inside a single database transaction.
	RunInTx(ctx context.Context, fn func(tx CheckoutTx) error) error

	// GetOrder loads an order with its items by internal id.
	GetOrder(ctx context.Context, orderID int64) (*Order, error)

	// GetUserOrderByNumber loads an order with its items, scoped to the
	// owning user.
	GetUserOrderByNumber(ctx context.Context, userID int64, orderNumber string) (*Order, error)

	// ListUserOrders returns the user's orders, newest first, without items.
	ListUserOrders(ctx context.Context, userID int64) ([]Order, error)
}

// PaymentStore provides durable Payment/PaymentRefund records. State
// transitions are single guarded statements so that concurrent
// reconciliation deliveries converge without in-process locking.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetPaymentByTransactionID looks up a payment by the provider-facing
	// transaction reference.
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error)

	// MarkPaymentInitiated records the provider handoff: transaction id,
	// payment URL, provider data, status=processing.
	MarkPaymentInitiated(ctx context.Context, id uuid.UUID, transactionID, paymentURL string, providerData map[string]any) error

	// MarkPaymentCompleted sets status=completed and paid_at exactly once
	// and cascades the order's payment_status to paid, all under the order
	// row lock. Idempotent: when the payment is already completed it
	// reports alreadyCompleted=true and changes nothing (first writer
	// wins). Returns ErrOrderCancelled, touching nothing, when the order
	// is cancelled at completion time.
	MarkPaymentCompleted(ctx context.Context, id uuid.UUID) (alreadyCompleted bool, err error)

	// MarkPaymentFailed sets status=failed and records the reason in the
	// provider data audit trail.
	MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string) error

	// MergeProviderData folds callback fields into the payment's audit trail.
	MergeProviderData(ctx context.Context, id uuid.UUID, data map[string]any) error

	CreateRefund(ctx context.Context, r *PaymentRefund) error

	// CompleteRefund marks the refund completed with the provider refund
	// reference. A refund covering the full charge flips the payment to
	// refunded; a partial refund leaves it completed.
	CompleteRefund(ctx context.Context, refundID int64, providerRefundID string, providerData map[string]any) error

	// FailRefund marks the refund failed and records the error detail.
	FailRefund(ctx context.Context, refundID int64, errDetail string) error
}

// CartStore is the cart collaborator consumed by checkout. The cart is an
// input; its storage mechanics live outside this core.
type CartStore interface {
	GetItems(ctx context.Context, userID int64) ([]CartItem, error)
}

// NotificationSender is the fire-and-forget notification collaborator.
// Failures are logged and swallowed, never surfaced to checkout callers.
type NotificationSender interface {
	SendOrderConfirmation(ctx context.Context, o *Order) error
}
