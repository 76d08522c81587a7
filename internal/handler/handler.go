// Package handler exposes the checkout and payment ledger over a JSON
// HTTP API. Handlers bind and validate request bodies, resolve the
// caller's identity, call services and translate domain errors to HTTP.
package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/owlshop/owlshop/internal/domain"
)

// userIDHeader carries the authenticated user id, set by the upstream
// auth layer. Identity itself is outside this service.
const userIDHeader = "X-User-ID"

// RequestValidator adapts go-playground/validator to echo's Validator
// interface.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates the echo request validator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return domain.Invalid("handler.Validate", err.Error())
	}
	return nil
}

// userID extracts the authenticated user id from the request.
func userID(c echo.Context) (int64, error) {
	raw := c.Request().Header.Get(userIDHeader)
	if raw == "" {
		return 0, domain.Unauthorized("handler.userID", "authentication required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Unauthorized("handler.userID", "invalid user identity")
	}
	return id, nil
}
