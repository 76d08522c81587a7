package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/service"
)

// PaymentHandler serves payment creation, status and refund endpoints.
type PaymentHandler struct {
	payments service.PaymentService
	logger   zerolog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(payments service.PaymentService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger.With().Str("component", "payment_handler").Logger(),
	}
}

type paymentResponse struct {
	ID            string     `json:"id"`
	OrderID       int64      `json:"order_id"`
	Method        string     `json:"method"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	PaymentURL    string     `json:"payment_url,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID.String(),
		OrderID:       p.OrderID,
		Method:        string(p.Method),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		PaymentURL:    p.PaymentURL,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
	}
}

type createPaymentRequest struct {
	OrderNumber   string `json:"order_number" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}

// Create handles POST /api/payments: a fresh payment attempt for an
// existing unpaid order.
func (h *PaymentHandler) Create(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req createPaymentRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, domain.Invalid("handler.CreatePayment", "malformed request body"))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	payment, err := h.payments.Create(c.Request().Context(), uid, req.OrderNumber, domain.PaymentMethod(req.PaymentMethod), c.RealIP())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toPaymentResponse(payment))
}

// Get handles GET /api/payments/:id.
func (h *PaymentHandler) Get(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return respondError(c, err)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, domain.Invalid("handler.GetPayment", "malformed payment id"))
	}

	payment, err := h.payments.Get(c.Request().Context(), uid, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResponse(payment))
}

type refundRequest struct {
	PaymentID string `json:"payment_id" validate:"required,uuid"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required"`
}

type refundResponse struct {
	ID        int64  `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	RefundID  string `json:"refund_id,omitempty"`
}

// Refund handles POST /api/payments/refund. Operator-facing; the upstream
// gateway restricts who can reach it.
func (h *PaymentHandler) Refund(c echo.Context) error {
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, domain.Invalid("handler.Refund", "malformed request body"))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		return respondError(c, domain.Invalid("handler.Refund", "malformed payment id"))
	}

	refund, err := h.payments.Refund(c.Request().Context(), service.RefundRequest{
		PaymentID: paymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, refundResponse{
		ID:        refund.ID,
		PaymentID: refund.PaymentID.String(),
		Amount:    refund.Amount,
		Reason:    refund.Reason,
		Status:    string(refund.Status),
		RefundID:  refund.RefundID,
	})
}
