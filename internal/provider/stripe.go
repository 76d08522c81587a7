package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/owlshop/owlshop/internal/domain"
)

// StripeConfig holds the API credentials for card payments via Stripe
// Checkout.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// StripeAdapter implements card payments with hosted Checkout Sessions.
// The payment id rides along as the session's client_reference_id so the
// completion webhook maps straight back to our ledger row.
type StripeAdapter struct {
	cfg StripeConfig
	sc  *client.API
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	return &StripeAdapter{cfg: cfg, sc: client.New(cfg.APIKey, nil)}
}

func (a *StripeAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodStripe }

func (a *StripeAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	const op = "provider.stripe.Initiate"

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Order.Items))
	for _, it := range req.Order.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Payment.Currency),
				UnitAmount: stripe.Int64(it.Price),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.ProductName),
				},
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		})
	}
	if req.Order.ShippingFee > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Payment.Currency),
				UnitAmount: stripe.Int64(req.Order.ShippingFee),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Shipping"),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		ClientReferenceID: stripe.String(req.Payment.ID.String()),
		SuccessURL:        stripe.String(a.cfg.SuccessURL),
		CancelURL:         stripe.String(a.cfg.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("payment_id", req.Payment.ID.String())
	params.AddMetadata("order_number", req.Order.OrderNumber)

	sess, err := a.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, domain.Errorf(domain.EPAYMENT, op, "create checkout session: %v", err)
	}

	return &InitiateResult{
		TransactionID: sess.ID,
		PaymentURL:    sess.URL,
		ProviderData: map[string]any{
			"session_id": sess.ID,
		},
	}, nil
}

// VerifyCallback authenticates a webhook delivery. Event types outside
// the checkout session lifecycle verify fine but produce an empty result
// (no TransactionID and no PaymentID), which reconciliation treats as
// nothing to do.
func (a *StripeAdapter) VerifyCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	const op = "provider.stripe.VerifyCallback"

	event, err := webhook.ConstructEvent(cb.Body, cb.Signature, a.cfg.WebhookSecret)
	if err != nil {
		return nil, domain.Unauthorized(op, "invalid signature")
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.async_payment_failed", "checkout.session.expired":
	default:
		return &CallbackResult{}, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, domain.Invalid(op, "malformed checkout session payload")
	}

	data := map[string]any{
		"session_id": sess.ID,
		"event_type": string(event.Type),
	}
	if sess.PaymentIntent != nil {
		data["payment_intent"] = sess.PaymentIntent.ID
	}

	success := event.Type != "checkout.session.expired" && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	failure := ""
	if !success {
		failure = fmt.Sprintf("checkout session %s not paid (%s)", sess.ID, event.Type)
	}

	return &CallbackResult{
		TransactionID: sess.ID,
		PaymentID:     sess.ClientReferenceID,
		Success:       success,
		Amount:        sess.AmountTotal,
		FailureReason: failure,
		ProviderData:  data,
	}, nil
}

func (a *StripeAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	const op = "provider.stripe.Refund"

	pi, ok := req.Payment.ProviderData["payment_intent"].(string)
	if !ok || pi == "" {
		return nil, domain.Errorf(domain.EPAYMENT, op, "payment has no payment intent reference")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(pi),
		Amount:        stripe.Int64(req.Refund.Amount),
	}
	params.Context = ctx

	ref, err := a.sc.Refunds.New(params)
	if err != nil {
		return nil, domain.Errorf(domain.EPAYMENT, op, "create refund: %v", err)
	}

	return &RefundResult{
		ProviderRefundID: ref.ID,
		ProviderData: map[string]any{
			"refund_id":     ref.ID,
			"refund_status": string(ref.Status),
		},
	}, nil
}
