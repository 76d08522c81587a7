package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod identifies which provider adapter collects money for an order.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodVNPay  PaymentMethod = "vnpay"
	PaymentMethodMoMo   PaymentMethod = "momo"
	PaymentMethodStripe PaymentMethod = "stripe"
)

// ValidPaymentMethod reports whether m is a supported payment method.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodVNPay, PaymentMethodMoMo, PaymentMethodStripe:
		return true
	}
	return false
}

// Online reports whether the method requires an external payment flow.
// COD is collected physically on delivery and creates no Payment at checkout.
func (m PaymentMethod) Online() bool {
	return m == PaymentMethodVNPay || m == PaymentMethodMoMo || m == PaymentMethodStripe
}

// PaymentState is the lifecycle state of one payment attempt.
// Transitions are monotonic: pending → processing → {completed | failed |
// cancelled}; refunded follows only from completed.
type PaymentState string

const (
	PaymentPending    PaymentState = "pending"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
	PaymentCancelled  PaymentState = "cancelled"
	PaymentRefunded   PaymentState = "refunded"
)

// Payment is one attempt to collect money for an Order via one provider.
// Many payments may exist per order (retries after failure) but only one
// may reach completed.
type Payment struct {
	ID     uuid.UUID
	OrderID int64
	UserID int64

	Method   PaymentMethod
	Amount   int64 // equals Order.Total at creation time
	Currency string

	Status PaymentState

	// TransactionID is the reference we hand to (or receive from) the
	// provider; unique once set.
	TransactionID string
	PaymentURL    string

	// ProviderData is an opaque provider-specific audit trail.
	ProviderData map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
	// PaidAt is set exactly once, together with status=completed.
	PaidAt *time.Time
}

// Refundable reports whether the payment can be refunded.
func (p *Payment) Refundable() bool {
	return p.Status == PaymentCompleted
}

// RefundStatus is the lifecycle state of a refund request.
type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
)

// PaymentRefund is a requested reversal of a completed payment.
// Created pending before the provider call, then completed with the
// provider refund id or failed with the error detail recorded.
type PaymentRefund struct {
	ID        int64
	PaymentID uuid.UUID
	Amount    int64 // ≤ original payment amount
	Reason    string
	Status    RefundStatus
	RefundID  string // provider-assigned refund reference

	ProviderData map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}
