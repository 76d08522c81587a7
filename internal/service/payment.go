package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/provider"
	"github.com/owlshop/owlshop/internal/telemetry"
)

// RefundRequest is the admin-initiated reversal of a completed payment.
type RefundRequest struct {
	PaymentID uuid.UUID
	Amount    int64
	Reason    string
}

// PaymentService covers payment retries, status reads and refunds.
type PaymentService interface {
	// Create makes a fresh payment attempt for an existing unpaid order
	// and hands it to the provider. Used to retry after a failed attempt.
	Create(ctx context.Context, userID int64, orderNumber string, method domain.PaymentMethod, clientIP string) (*domain.Payment, error)

	// Get loads a payment, scoped to the owning user.
	Get(ctx context.Context, userID int64, id uuid.UUID) (*domain.Payment, error)

	// Refund reverses a completed payment with the provider.
	Refund(ctx context.Context, req RefundRequest) (*domain.PaymentRefund, error)
}

type paymentService struct {
	ledger    domain.LedgerStore
	payments  domain.PaymentStore
	providers *provider.Registry
	metrics   *telemetry.BusinessMetrics
	logger    zerolog.Logger
	currency  string
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	ledger domain.LedgerStore,
	payments domain.PaymentStore,
	providers *provider.Registry,
	metrics *telemetry.BusinessMetrics,
	logger zerolog.Logger,
	currency string,
) PaymentService {
	return &paymentService{
		ledger:    ledger,
		payments:  payments,
		providers: providers,
		metrics:   metrics,
		logger:    logger.With().Str("component", "payments").Logger(),
		currency:  currency,
	}
}

// Create starts a new payment attempt for an order. Many attempts may
// exist per order; the completion CAS plus the order payment_status guard
// ensure only one ever settles.
func (s *paymentService) Create(ctx context.Context, userID int64, orderNumber string, method domain.PaymentMethod, clientIP string) (*domain.Payment, error) {
	const op = "service.CreatePayment"

	if !method.Online() {
		return nil, domain.Invalid(op, "payment method requires no online payment")
	}

	order, err := s.ledger.GetUserOrderByNumber(ctx, userID, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.OrderStatusCancelled {
		return nil, domain.Conflict(op, "order is cancelled")
	}
	if order.PaymentStatus == domain.OrderPaid {
		return nil, domain.Conflict(op, "order is already paid")
	}

	payment := &domain.Payment{
		OrderID:  order.ID,
		UserID:   userID,
		Method:   method,
		Amount:   order.Total,
		Currency: s.currency,
		Status:   domain.PaymentPending,
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, domain.Internal(err, op, "failed to create payment")
	}

	adapter, err := s.providers.Get(method)
	if err != nil {
		return nil, err
	}
	res, err := adapter.Initiate(ctx, provider.InitiateRequest{
		Payment:  payment,
		Order:    order,
		ClientIP: clientIP,
	})
	if err != nil {
		s.metrics.PaymentFailed.WithLabelValues(string(method), "initiation_error").Inc()
		if ferr := s.payments.MarkPaymentFailed(ctx, payment.ID, "initiation failed: "+domain.ErrorMessage(err)); ferr != nil {
			s.logger.Error().Err(ferr).Str("payment_id", payment.ID.String()).Msg("failed to mark payment failed")
		}
		return nil, err
	}
	if err := s.payments.MarkPaymentInitiated(ctx, payment.ID, res.TransactionID, res.PaymentURL, res.ProviderData); err != nil {
		return nil, domain.Internal(err, op, "failed to record payment initiation")
	}

	payment.Status = domain.PaymentProcessing
	payment.TransactionID = res.TransactionID
	payment.PaymentURL = res.PaymentURL
	s.metrics.PaymentInitiated.WithLabelValues(string(method)).Inc()

	s.logger.Info().
		Str("order_number", orderNumber).
		Str("payment_id", payment.ID.String()).
		Str("method", string(method)).
		Msg("payment initiated")
	return payment, nil
}

func (s *paymentService) Get(ctx context.Context, userID int64, id uuid.UUID) (*domain.Payment, error) {
	const op = "service.GetPayment"

	p, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	// Report foreign payments as missing rather than forbidden; their
	// existence is not the caller's business.
	if p.UserID != userID {
		return nil, domain.NotFound(op, "payment", id.String())
	}
	return p, nil
}

// Refund dispatches a reversal to the provider and records the outcome.
//
// Flow:
//  1. Only completed payments qualify; amount must not exceed the
//     original charge.
//  2. The refund row is created pending before the provider call so a
//     crash mid-call leaves an auditable trace.
//  3. Provider success completes the refund and flips the payment to
//     refunded; provider failure records the error on the refund row.
func (s *paymentService) Refund(ctx context.Context, req RefundRequest) (*domain.PaymentRefund, error) {
	const op = "service.RefundPayment"

	p, err := s.payments.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if !p.Refundable() {
		return nil, domain.Conflict(op, "only completed payments can be refunded")
	}
	if req.Amount <= 0 || req.Amount > p.Amount {
		return nil, domain.Invalid(op, "refund amount must be positive and not exceed the payment amount")
	}

	refund := &domain.PaymentRefund{
		PaymentID: p.ID,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Status:    domain.RefundPending,
	}
	if err := s.payments.CreateRefund(ctx, refund); err != nil {
		return nil, domain.Internal(err, op, "failed to create refund")
	}

	adapter, err := s.providers.Get(p.Method)
	if err != nil {
		return nil, err
	}
	res, err := adapter.Refund(ctx, provider.RefundRequest{Payment: p, Refund: refund})
	if err != nil {
		s.metrics.RefundsFailed.WithLabelValues(string(p.Method)).Inc()
		if ferr := s.payments.FailRefund(ctx, refund.ID, domain.ErrorMessage(err)); ferr != nil {
			s.logger.Error().Err(ferr).Int64("refund_id", refund.ID).Msg("failed to mark refund failed")
		}
		refund.Status = domain.RefundFailed
		return nil, err
	}

	if err := s.payments.CompleteRefund(ctx, refund.ID, res.ProviderRefundID, res.ProviderData); err != nil {
		return nil, domain.Internal(err, op, "provider refunded but recording failed")
	}
	refund.Status = domain.RefundCompleted
	refund.RefundID = res.ProviderRefundID

	s.metrics.RefundsIssued.WithLabelValues(string(p.Method)).Inc()
	s.metrics.RefundAmount.WithLabelValues(string(p.Method)).Add(float64(req.Amount))
	s.logger.Info().
		Str("payment_id", p.ID.String()).
		Int64("refund_id", refund.ID).
		Int64("amount", req.Amount).
		Msg("refund completed")
	return refund, nil
}
