package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/owlshop/owlshop/internal/domain"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFromCode maps domain error codes to HTTP statuses.
func statusFromCode(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a domain error as JSON. Internal details stay out
// of the response body; ErrorMessage already degrades them to a generic
// message.
func respondError(c echo.Context, err error) error {
	return c.JSON(statusFromCode(domain.ErrorCode(err)), errorResponse{
		Error: errorBody{
			Code:    domain.ErrorCode(err),
			Message: domain.ErrorMessage(err),
		},
	})
}
