package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires the HTTP surface onto the echo instance.
func RegisterRoutes(e *echo.Echo, orders *OrderHandler, payments *PaymentHandler, callbacks *CallbackHandler, health echo.HandlerFunc) {
	e.GET("/health", health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	api.POST("/orders/checkout", orders.Checkout)
	api.GET("/orders", orders.List)
	api.GET("/orders/:number", orders.Get)
	api.POST("/orders/:number/cancel", orders.Cancel)

	api.POST("/payments", payments.Create)
	api.GET("/payments/:id", payments.Get)
	api.POST("/payments/refund", payments.Refund)

	api.GET("/payments/vnpay/return", callbacks.VNPayReturn)
	api.GET("/payments/vnpay/ipn", callbacks.VNPayIPN)
	api.GET("/payments/momo/return", callbacks.MoMoReturn)
	api.POST("/payments/momo/webhook", callbacks.MoMoWebhook)
	api.POST("/payments/stripe/webhook", callbacks.StripeWebhook)
}

// Health returns a liveness handler that reports ok when ping succeeds.
func Health(ping func() error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := ping(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
