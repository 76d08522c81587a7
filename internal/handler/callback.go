package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/provider"
	"github.com/owlshop/owlshop/internal/service"
)

// maxWebhookBody caps provider webhook payloads.
const maxWebhookBody = 1 << 16

// CallbackHandler serves the provider callback endpoints. Each endpoint
// speaks its provider's transport dialect (response envelopes, always-ack
// webhooks) and delegates every ledger decision to reconciliation.
type CallbackHandler struct {
	reconcile service.ReconcileService
	logger    zerolog.Logger
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(reconcile service.ReconcileService, logger zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		reconcile: reconcile,
		logger:    logger.With().Str("component", "callback_handler").Logger(),
	}
}

// callbackStatus is the buyer-facing payment outcome shown on return
// redirects.
type callbackStatus struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func toCallbackStatus(res *service.ReconcileResult) callbackStatus {
	switch res.Outcome {
	case service.OutcomeCompleted, service.OutcomeDuplicate:
		return callbackStatus{Success: true, Status: "completed"}
	case service.OutcomeIgnored:
		return callbackStatus{Success: false, Status: "pending"}
	default:
		return callbackStatus{Success: false, Status: "failed", Message: res.Reason}
	}
}

func queryParams(c echo.Context) map[string]string {
	params := make(map[string]string)
	for k, vs := range c.QueryParams() {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

// VNPayReturn handles GET /api/payments/vnpay/return: the buyer's browser
// arriving back from the gateway. A human is waiting, so the response
// reflects the payment outcome.
func (h *CallbackHandler) VNPayReturn(c echo.Context) error {
	res, err := h.reconcile.HandleCallback(c.Request().Context(), domain.PaymentMethodVNPay, "return", provider.Callback{
		Params: queryParams(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toCallbackStatus(res))
}

// vnpIPNResponse is the acknowledgment envelope the gateway expects on
// its IPN channel. The gateway retries until it sees RspCode 00 or 02.
type vnpIPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// VNPayIPN handles GET /api/payments/vnpay/ipn: the gateway's
// server-to-server notification. Always 200 with the provider envelope;
// the RspCode carries the verdict.
func (h *CallbackHandler) VNPayIPN(c echo.Context) error {
	res, err := h.reconcile.HandleCallback(c.Request().Context(), domain.PaymentMethodVNPay, "ipn", provider.Callback{
		Params: queryParams(c),
	})
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EUNAUTHORIZED:
			return c.JSON(http.StatusOK, vnpIPNResponse{RspCode: "97", Message: "Invalid signature"})
		case domain.ENOTFOUND:
			return c.JSON(http.StatusOK, vnpIPNResponse{RspCode: "01", Message: "Order not found"})
		default:
			h.logger.Error().Err(err).Msg("vnpay ipn processing failed")
			return c.JSON(http.StatusOK, vnpIPNResponse{RspCode: "99", Message: "Unknown error"})
		}
	}
	if res.Outcome == service.OutcomeDuplicate {
		return c.JSON(http.StatusOK, vnpIPNResponse{RspCode: "02", Message: "Order already confirmed"})
	}
	return c.JSON(http.StatusOK, vnpIPNResponse{RspCode: "00", Message: "Confirm Success"})
}

// MoMoReturn handles GET /api/payments/momo/return: the buyer's browser
// arriving back from the wallet, with the IPN fields as query parameters.
func (h *CallbackHandler) MoMoReturn(c echo.Context) error {
	res, err := h.reconcile.HandleCallback(c.Request().Context(), domain.PaymentMethodMoMo, "return", provider.Callback{
		Params: queryParams(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toCallbackStatus(res))
}

// MoMoWebhook handles POST /api/payments/momo/webhook. The wallet treats
// any 2xx as delivered and anything else as retryable, so the response is
// always 204; failures live in logs and the ledger, never in the status
// code.
func (h *CallbackHandler) MoMoWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Error().Err(err).Msg("momo webhook body read failed")
		return c.NoContent(http.StatusNoContent)
	}

	if _, err := h.reconcile.HandleCallback(c.Request().Context(), domain.PaymentMethodMoMo, "webhook", provider.Callback{
		Body: body,
	}); err != nil {
		h.logger.Warn().Err(err).Msg("momo webhook not applied")
	}
	return c.NoContent(http.StatusNoContent)
}

// StripeWebhook handles POST /api/payments/stripe/webhook. Bad signatures
// get a 401 so the dashboard surfaces misconfiguration; everything else
// is acknowledged with 200 to stop redelivery.
func (h *CallbackHandler) StripeWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return respondError(c, domain.Invalid("handler.StripeWebhook", "unreadable payload"))
	}

	_, err = h.reconcile.HandleCallback(c.Request().Context(), domain.PaymentMethodStripe, "webhook", provider.Callback{
		Body:      body,
		Signature: c.Request().Header.Get("Stripe-Signature"),
	})
	if err != nil {
		if domain.IsCode(err, domain.EUNAUTHORIZED) {
			return respondError(c, err)
		}
		h.logger.Warn().Err(err).Msg("stripe webhook not applied")
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
