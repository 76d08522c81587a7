package provider

import (
	"context"

	"github.com/owlshop/owlshop/internal/domain"
)

// CODAdapter handles cash-on-delivery. Money changes hands at the door,
// so there is no external gateway: initiation is a no-op handoff and
// callbacks never arrive.
type CODAdapter struct{}

func NewCODAdapter() *CODAdapter { return &CODAdapter{} }

func (a *CODAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodCOD }

func (a *CODAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	return &InitiateResult{
		TransactionID: req.Payment.ID.String(),
		ProviderData:  map[string]any{"collect_on_delivery": true},
	}, nil
}

func (a *CODAdapter) VerifyCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	return nil, domain.Errorf(domain.ENOTIMPL, "provider.cod.VerifyCallback", "cash on delivery has no gateway callbacks")
}

func (a *CODAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return nil, domain.Errorf(domain.ENOTIMPL, "provider.cod.Refund", "cash on delivery refunds are settled offline")
}
