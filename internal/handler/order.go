package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/service"
)

// OrderHandler serves checkout and order endpoints.
type OrderHandler struct {
	checkout service.CheckoutService
	orders   service.OrderService
	logger   zerolog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(checkout service.CheckoutService, orders service.OrderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		checkout: checkout,
		orders:   orders,
		logger:   logger.With().Str("component", "order_handler").Logger(),
	}
}

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
	RecipientName string `json:"recipient_name" validate:"required"`
	Phone         string `json:"phone" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address" validate:"required"`
	City          string `json:"city" validate:"required"`
	District      string `json:"district"`
	Ward          string `json:"ward"`
	Note          string `json:"note"`
}

type orderItemResponse struct {
	ProductID    *int64 `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image,omitempty"`
	Quantity     int32  `json:"quantity"`
	Price        int64  `json:"price"`
	Subtotal     int64  `json:"subtotal"`
}

type orderResponse struct {
	OrderNumber   string              `json:"order_number"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	PaymentStatus string              `json:"payment_status"`
	RecipientName string              `json:"recipient_name"`
	Phone         string              `json:"phone"`
	Email         string              `json:"email,omitempty"`
	Address       string              `json:"address"`
	City          string              `json:"city"`
	District      string              `json:"district,omitempty"`
	Ward          string              `json:"ward,omitempty"`
	Note          string              `json:"note,omitempty"`
	Subtotal      int64               `json:"subtotal"`
	ShippingFee   int64               `json:"shipping_fee"`
	Discount      int64               `json:"discount"`
	Total         int64               `json:"total"`
	Items         []orderItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

type checkoutResponse struct {
	Order   orderResponse    `json:"order"`
	Payment *paymentResponse `json:"payment,omitempty"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		RecipientName: o.RecipientName,
		Phone:         o.Phone,
		Email:         o.Email,
		Address:       o.Address,
		City:          o.City,
		District:      o.District,
		Ward:          o.Ward,
		Note:          o.Note,
		Subtotal:      o.Subtotal,
		ShippingFee:   o.ShippingFee,
		Discount:      o.Discount,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			Quantity:     it.Quantity,
			Price:        it.Price,
			Subtotal:     it.Subtotal(),
		})
	}
	return resp
}

// Checkout handles POST /api/orders/checkout.
func (h *OrderHandler) Checkout(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, domain.Invalid("handler.Checkout", "malformed request body"))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	result, err := h.checkout.Checkout(c.Request().Context(), uid, service.CheckoutRequest{
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Shipping: domain.ShippingInfo{
			RecipientName: req.RecipientName,
			Phone:         req.Phone,
			Email:         req.Email,
			Address:       req.Address,
			City:          req.City,
			District:      req.District,
			Ward:          req.Ward,
			Note:          req.Note,
		},
		ClientIP: c.RealIP(),
	})
	if err != nil {
		return respondError(c, err)
	}

	resp := checkoutResponse{Order: toOrderResponse(result.Order)}
	if result.Payment != nil {
		p := toPaymentResponse(result.Payment)
		resp.Payment = &p
	}
	return c.JSON(http.StatusCreated, resp)
}

// List handles GET /api/orders.
func (h *OrderHandler) List(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return respondError(c, err)
	}

	orders, err := h.orders.List(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/orders/:number.
func (h *OrderHandler) Get(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return respondError(c, err)
	}

	order, err := h.orders.Get(c.Request().Context(), uid, c.Param("number"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

// Cancel handles POST /api/orders/:number/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return respondError(c, err)
	}

	order, err := h.orders.Cancel(c.Request().Context(), uid, c.Param("number"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}
