package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/provider"
	"github.com/owlshop/owlshop/internal/telemetry"
)

// ReconcileOutcome classifies what a callback delivery did to the ledger.
type ReconcileOutcome string

const (
	// OutcomeCompleted is the first successful confirmation of a payment.
	OutcomeCompleted ReconcileOutcome = "completed"
	// OutcomeDuplicate is a redelivery of an already-settled confirmation.
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	// OutcomeFailed covers gateway declines, amount mismatches and
	// confirmations arriving after cancellation.
	OutcomeFailed ReconcileOutcome = "failed"
	// OutcomeIgnored is a verified callback that references nothing we
	// track (e.g. an unhandled event type).
	OutcomeIgnored ReconcileOutcome = "ignored"
)

// ReconcileResult is the normalized effect of one callback delivery.
type ReconcileResult struct {
	Outcome ReconcileOutcome
	Payment *domain.Payment
	// Reason explains failed outcomes.
	Reason string
}

// ReconcileService applies provider callbacks to the payment ledger.
// Transport concerns (per-provider response envelopes, always-ack
// webhooks) stay in the handlers; this service decides what is true.
type ReconcileService interface {
	// HandleCallback verifies and applies one provider notification.
	// channel distinguishes delivery paths (return, ipn, webhook) for
	// observability only; the decision logic is identical.
	HandleCallback(ctx context.Context, method domain.PaymentMethod, channel string, cb provider.Callback) (*ReconcileResult, error)
}

type reconcileService struct {
	ledger    domain.LedgerStore
	payments  domain.PaymentStore
	providers *provider.Registry
	metrics   *telemetry.BusinessMetrics
	logger    zerolog.Logger
}

// NewReconcileService creates a ReconcileService.
func NewReconcileService(
	ledger domain.LedgerStore,
	payments domain.PaymentStore,
	providers *provider.Registry,
	metrics *telemetry.BusinessMetrics,
	logger zerolog.Logger,
) ReconcileService {
	return &reconcileService{
		ledger:    ledger,
		payments:  payments,
		providers: providers,
		metrics:   metrics,
		logger:    logger.With().Str("component", "reconcile").Logger(),
	}
}

// HandleCallback runs the reconciliation state machine.
//
// Flow:
//  1. Verify the payload signature via the adapter. Invalid signatures
//     reject the delivery with EUNAUTHORIZED and touch nothing.
//  2. Resolve the payment by echoed payment id or transaction reference.
//  3. Merge callback fields into the payment's audit trail.
//  4. Gateway-reported failure marks the payment failed.
//  5. Verify the reported amount against the stored payment amount; a
//     mismatch is treated as tampering and marks the payment failed,
//     never completed.
//  6. A success for an already-cancelled order is an anomaly: the
//     payment is marked failed, the order stays cancelled. The store
//     re-checks this under the order row lock, so a cancellation
//     committing mid-flight still loses the confirmation.
//  7. Otherwise complete via the guarded update; redeliveries converge
//     to a duplicate outcome.
func (s *reconcileService) HandleCallback(ctx context.Context, method domain.PaymentMethod, channel string, cb provider.Callback) (*ReconcileResult, error) {
	const op = "service.HandleCallback"
	providerName := string(method)

	s.metrics.WebhookReceived.WithLabelValues(providerName, channel).Inc()

	adapter, err := s.providers.Get(method)
	if err != nil {
		return nil, err
	}
	res, err := adapter.VerifyCallback(ctx, cb)
	if err != nil {
		if domain.IsCode(err, domain.EUNAUTHORIZED) {
			s.metrics.WebhookInvalidSignature.WithLabelValues(providerName).Inc()
			s.logger.Warn().
				Str("provider", providerName).
				Str("channel", channel).
				Msg("callback rejected: invalid signature")
		}
		return nil, err
	}

	if res.TransactionID == "" && res.PaymentID == "" {
		s.metrics.WebhookProcessed.WithLabelValues(providerName, string(OutcomeIgnored)).Inc()
		return &ReconcileResult{Outcome: OutcomeIgnored}, nil
	}

	payment, err := s.resolvePayment(ctx, res)
	if err != nil {
		return nil, err
	}

	if err := s.payments.MergeProviderData(ctx, payment.ID, res.ProviderData); err != nil {
		s.logger.Error().Err(err).Str("payment_id", payment.ID.String()).Msg("failed to merge provider data")
	}

	if !res.Success {
		return s.fail(ctx, payment, res.FailureReason, "gateway_declined", channel)
	}

	if res.Amount != payment.Amount {
		reason := fmt.Sprintf("amount mismatch: provider reported %d, expected %d", res.Amount, payment.Amount)
		s.logger.Warn().
			Str("payment_id", payment.ID.String()).
			Int64("reported", res.Amount).
			Int64("expected", payment.Amount).
			Msg("callback amount does not match ledger")
		return s.fail(ctx, payment, reason, "amount_mismatch", channel)
	}

	order, err := s.ledger.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.OrderStatusCancelled {
		s.logger.Warn().
			Str("payment_id", payment.ID.String()).
			Str("order_number", order.OrderNumber).
			Msg("payment confirmation arrived for a cancelled order")
		return s.fail(ctx, payment, "order cancelled before payment confirmation", "order_cancelled", channel)
	}

	already, err := s.payments.MarkPaymentCompleted(ctx, payment.ID)
	if errors.Is(err, domain.ErrOrderCancelled) {
		// The cancellation committed between the read above and the
		// completion; the store refused under the order row lock.
		s.logger.Warn().
			Str("payment_id", payment.ID.String()).
			Str("order_number", order.OrderNumber).
			Msg("payment confirmation lost the race against cancellation")
		return s.fail(ctx, payment, "order cancelled before payment confirmation", "order_cancelled", channel)
	}
	if err != nil {
		return nil, err
	}
	if already {
		s.metrics.WebhookProcessed.WithLabelValues(providerName, string(OutcomeDuplicate)).Inc()
		s.logger.Info().
			Str("payment_id", payment.ID.String()).
			Str("channel", channel).
			Msg("duplicate confirmation, already completed")
		payment.Status = domain.PaymentCompleted
		return &ReconcileResult{Outcome: OutcomeDuplicate, Payment: payment}, nil
	}

	payment.Status = domain.PaymentCompleted
	s.metrics.PaymentSucceeded.WithLabelValues(providerName).Inc()
	s.metrics.WebhookProcessed.WithLabelValues(providerName, string(OutcomeCompleted)).Inc()
	s.logger.Info().
		Str("payment_id", payment.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("channel", channel).
		Msg("payment completed")
	return &ReconcileResult{Outcome: OutcomeCompleted, Payment: payment}, nil
}

// resolvePayment finds the ledger row a callback refers to, preferring a
// directly echoed payment id over the transaction reference.
func (s *reconcileService) resolvePayment(ctx context.Context, res *provider.CallbackResult) (*domain.Payment, error) {
	if res.PaymentID != "" {
		id, err := uuid.Parse(res.PaymentID)
		if err != nil {
			return nil, domain.Invalid("service.resolvePayment", "malformed payment reference")
		}
		return s.payments.GetPayment(ctx, id)
	}
	return s.payments.GetPaymentByTransactionID(ctx, res.TransactionID)
}

func (s *reconcileService) fail(ctx context.Context, payment *domain.Payment, reason, metricReason, channel string) (*ReconcileResult, error) {
	providerName := string(payment.Method)
	if err := s.payments.MarkPaymentFailed(ctx, payment.ID, reason); err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentFailed
	s.metrics.PaymentFailed.WithLabelValues(providerName, metricReason).Inc()
	s.metrics.WebhookProcessed.WithLabelValues(providerName, string(OutcomeFailed)).Inc()
	s.logger.Info().
		Str("payment_id", payment.ID.String()).
		Str("channel", channel).
		Str("reason", reason).
		Msg("payment marked failed")
	return &ReconcileResult{Outcome: OutcomeFailed, Payment: payment, Reason: reason}, nil
}
