package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/provider"
	"github.com/owlshop/owlshop/internal/telemetry"
)

// CheckoutRequest is the validated input to a checkout.
type CheckoutRequest struct {
	PaymentMethod domain.PaymentMethod
	Shipping      domain.ShippingInfo

	// ClientIP is forwarded to gateways that bind signed requests to the
	// buyer's address.
	ClientIP string
}

// CheckoutResult is what a successful checkout produces. Payment is nil
// for cash on delivery, and carries the provider handoff (payment URL)
// for online methods. A failed provider handoff still returns the order
// together with the failed payment; the payment can be retried later.
type CheckoutResult struct {
	Order   *domain.Order
	Payment *domain.Payment
}

// CheckoutService converts a cart into an order with reserved stock and,
// for online methods, a payment handed to the provider.
type CheckoutService interface {
	Checkout(ctx context.Context, userID int64, req CheckoutRequest) (*CheckoutResult, error)
}

type checkoutService struct {
	ledger    domain.LedgerStore
	payments  domain.PaymentStore
	cart      domain.CartStore
	providers *provider.Registry
	notifier  domain.NotificationSender
	metrics   *telemetry.BusinessMetrics
	logger    zerolog.Logger

	shippingFee int64
	currency    string
}

// NewCheckoutService creates a CheckoutService. shippingFee is the flat
// per-order fee; currency is the ledger currency code (e.g. "vnd").
func NewCheckoutService(
	ledger domain.LedgerStore,
	payments domain.PaymentStore,
	cart domain.CartStore,
	providers *provider.Registry,
	notifier domain.NotificationSender,
	metrics *telemetry.BusinessMetrics,
	logger zerolog.Logger,
	shippingFee int64,
	currency string,
) CheckoutService {
	return &checkoutService{
		ledger:      ledger,
		payments:    payments,
		cart:        cart,
		providers:   providers,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger.With().Str("component", "checkout").Logger(),
		shippingFee: shippingFee,
		currency:    currency,
	}
}

// Checkout runs the full checkout workflow.
//
// Flow:
//  1. Load the cart; an empty cart rejects the whole request.
//  2. In one transaction: lock all products (ascending id), revalidate
//     stock against live rows, create the order with line snapshots,
//     reserve stock with guarded relative updates, clear the cart.
//     Any shortfall aborts the transaction; no partial orders.
//  3. Post-commit, for online methods: create the payment row and hand
//     it to the provider. Provider failure marks the payment failed but
//     never unwinds the committed order.
//  4. Fire-and-forget order confirmation publish.
func (s *checkoutService) Checkout(ctx context.Context, userID int64, req CheckoutRequest) (*CheckoutResult, error) {
	const op = "service.Checkout"

	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		return nil, domain.Errorf(domain.EINVALID, op, "invalid payment method: %s", req.PaymentMethod)
	}
	method := string(req.PaymentMethod)
	s.metrics.CheckoutAttempts.WithLabelValues(method).Inc()

	items, err := s.cart.GetItems(ctx, userID)
	if err != nil {
		s.metrics.CheckoutFailed.WithLabelValues(method, "internal").Inc()
		return nil, domain.Internal(err, op, "failed to load cart")
	}
	if len(items) == 0 {
		s.metrics.CheckoutFailed.WithLabelValues(method, "empty_cart").Inc()
		return nil, domain.Invalid(op, "cart is empty")
	}

	order := &domain.Order{
		UserID:        userID,
		OrderNumber:   domain.GenerateOrderNumber(),
		Status:        domain.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.OrderUnpaid,
		RecipientName: req.Shipping.RecipientName,
		Phone:         req.Shipping.Phone,
		Email:         req.Shipping.Email,
		Address:       req.Shipping.Address,
		City:          req.Shipping.City,
		District:      req.Shipping.District,
		Ward:          req.Shipping.Ward,
		Note:          req.Shipping.Note,
		ShippingFee:   s.shippingFee,
	}

	err = s.ledger.RunInTx(ctx, func(tx domain.CheckoutTx) error {
		ids := make([]int64, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ProductID)
		}

		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		order.Items = order.Items[:0]
		for _, it := range items {
			p, ok := products[it.ProductID]
			if !ok {
				return domain.Errorf(domain.EINVALID, op, "product %d is no longer available", it.ProductID)
			}
			if p.Stock < it.Quantity {
				return domain.Errorf(domain.ECONFLICT, op, "insufficient stock for %s", p.Name)
			}
			pid := p.ID
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:    &pid,
				ProductName:  p.Name,
				ProductImage: p.ImageURL,
				Quantity:     it.Quantity,
				Price:        p.CurrentPrice(),
			})
		}
		if err := order.RecalculateTotals(); err != nil {
			return err
		}

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for i := range order.Items {
			order.Items[i].OrderID = order.ID
		}
		if err := tx.CreateOrderItems(ctx, order.Items); err != nil {
			return err
		}
		for _, it := range order.Items {
			if err := tx.ReserveStock(ctx, *it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		return tx.ClearCart(ctx, userID)
	})
	if err != nil {
		s.metrics.CheckoutFailed.WithLabelValues(method, checkoutFailureReason(err)).Inc()
		return nil, err
	}

	s.metrics.CheckoutCompleted.WithLabelValues(method).Inc()
	s.metrics.OrderValue.WithLabelValues(method).Observe(float64(order.Total))
	s.metrics.OrderItemCount.Observe(float64(order.ItemCount()))

	result := &CheckoutResult{Order: order}
	if req.PaymentMethod.Online() {
		result.Payment = s.initiatePayment(ctx, order, req)
	}

	s.publishConfirmation(order)

	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Int64("user_id", userID).
		Str("payment_method", method).
		Int64("total", order.Total).
		Msg("checkout completed")

	return result, nil
}

// initiatePayment creates the payment row and hands it to the provider.
// The order is already committed; any failure here is recorded on the
// payment and absorbed so the caller still gets their order back.
func (s *checkoutService) initiatePayment(ctx context.Context, order *domain.Order, req CheckoutRequest) *domain.Payment {
	payment := &domain.Payment{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Method:   req.PaymentMethod,
		Amount:   order.Total,
		Currency: s.currency,
		Status:   domain.PaymentPending,
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		s.logger.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Msg("failed to create payment record")
		return nil
	}

	adapter, err := s.providers.Get(req.PaymentMethod)
	if err == nil {
		var res *provider.InitiateResult
		res, err = adapter.Initiate(ctx, provider.InitiateRequest{
			Payment:  payment,
			Order:    order,
			ClientIP: req.ClientIP,
		})
		if err == nil {
			err = s.payments.MarkPaymentInitiated(ctx, payment.ID, res.TransactionID, res.PaymentURL, res.ProviderData)
			if err == nil {
				payment.Status = domain.PaymentProcessing
				payment.TransactionID = res.TransactionID
				payment.PaymentURL = res.PaymentURL
				s.metrics.PaymentInitiated.WithLabelValues(string(req.PaymentMethod)).Inc()
				return payment
			}
		}
	}

	s.logger.Error().Err(err).
		Str("order_number", order.OrderNumber).
		Str("payment_id", payment.ID.String()).
		Msg("payment initiation failed, order kept")
	s.metrics.PaymentFailed.WithLabelValues(string(req.PaymentMethod), "initiation_error").Inc()
	if ferr := s.payments.MarkPaymentFailed(ctx, payment.ID, "initiation failed: "+domain.ErrorMessage(err)); ferr != nil {
		s.logger.Error().Err(ferr).Str("payment_id", payment.ID.String()).Msg("failed to mark payment failed")
	}
	payment.Status = domain.PaymentFailed
	return payment
}

// publishConfirmation emits the order-confirmation event without blocking
// the request. Publish failures are logged and swallowed.
func (s *checkoutService) publishConfirmation(order *domain.Order) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.SendOrderConfirmation(ctx, order); err != nil {
			s.metrics.NotificationsFailed.WithLabelValues("order_confirmation").Inc()
			s.logger.Error().Err(err).
				Str("order_number", order.OrderNumber).
				Msg("order confirmation publish failed")
			return
		}
		s.metrics.NotificationsPublished.WithLabelValues("order_confirmation").Inc()
	}()
}

func checkoutFailureReason(err error) string {
	switch domain.ErrorCode(err) {
	case domain.ECONFLICT:
		return "out_of_stock"
	case domain.EINVALID:
		return "invalid"
	default:
		return "internal"
	}
}
