// Package provider contains the payment provider adapters. Each adapter
// translates between the order/payment ledger and one external gateway:
// request signing, callback signature verification and refund calls.
// Adapters never touch the database; reconciliation decisions belong to
// the service layer.
package provider

import (
	"context"

	"github.com/owlshop/owlshop/internal/domain"
)

// InitiateRequest carries everything an adapter needs to start a payment.
type InitiateRequest struct {
	Payment *domain.Payment
	Order   *domain.Order

	// ClientIP is the buyer's address, required by gateways that bind the
	// signed request to the originating IP.
	ClientIP string
}

// InitiateResult is the provider handoff produced by Initiate.
type InitiateResult struct {
	// TransactionID is the reference the provider will echo back in
	// callbacks. Unique per payment attempt.
	TransactionID string

	// PaymentURL is where the buyer completes the payment. Empty for
	// methods with no redirect step.
	PaymentURL string

	// ProviderData holds provider-specific fields worth keeping in the
	// payment's audit trail.
	ProviderData map[string]any
}

// Callback is a raw provider notification before verification. Redirect
// gateways deliver query parameters; wallet and card gateways deliver a
// JSON body, optionally with a detached signature header.
type Callback struct {
	Params    map[string]string
	Body      []byte
	Signature string
}

// CallbackResult is the verified, normalized content of a callback.
// Verification covers authenticity of the payload only; amount checks
// against the ledger happen in the reconciliation service.
type CallbackResult struct {
	// TransactionID identifies the payment attempt the callback is about.
	TransactionID string

	// PaymentID is set instead of TransactionID by providers that echo
	// our payment id directly.
	PaymentID string

	Success bool
	// Amount is the provider-reported amount in whole currency units.
	Amount int64

	// FailureReason is a human-readable explanation when Success is false.
	FailureReason string

	// ProviderData holds the callback fields to merge into the audit trail.
	ProviderData map[string]any
}

// RefundRequest asks the provider to reverse a completed payment.
type RefundRequest struct {
	Payment *domain.Payment
	Refund  *domain.PaymentRefund
}

// RefundResult reports a provider-confirmed refund.
type RefundResult struct {
	ProviderRefundID string
	ProviderData     map[string]any
}

// Adapter is one payment provider integration.
type Adapter interface {
	Method() domain.PaymentMethod

	// Initiate starts a payment with the provider and returns the handoff.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)

	// VerifyCallback authenticates a provider notification and normalizes
	// its content. Returns EUNAUTHORIZED when the signature is invalid.
	VerifyCallback(ctx context.Context, cb Callback) (*CallbackResult, error)

	// Refund reverses a completed payment with the provider.
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// Registry resolves adapters by payment method.
type Registry struct {
	adapters map[domain.PaymentMethod]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.PaymentMethod]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Method()] = a
	}
	return r
}

// Get returns the adapter for a method.
func (r *Registry) Get(method domain.PaymentMethod) (Adapter, error) {
	a, ok := r.adapters[method]
	if !ok {
		return nil, domain.Errorf(domain.EINVALID, "provider.Get", "unsupported payment method: %s", method)
	}
	return a, nil
}
