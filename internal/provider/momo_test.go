package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlshop/owlshop/internal/domain"
)

func testMoMoAdapter(endpoint string) *MoMoAdapter {
	return NewMoMoAdapter(MoMoConfig{
		PartnerCode: "OWLSHOP",
		AccessKey:   "access",
		SecretKey:   "secret",
		Endpoint:    endpoint,
		ReturnURL:   "https://shop.example/payments/momo/return",
		IPNURL:      "https://shop.example/payments/momo/webhook",
	}, nil)
}

func signMoMo(secret, raw string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestMoMoInitiate_SignedCreateCall(t *testing.T) {
	var got momoCreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/gateway/api/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(momoCreateResponse{
			ResultCode: 0,
			PayURL:     "https://test-payment.momo.vn/pay/abc",
			Deeplink:   "momo://app?action=pay",
		})
	}))
	defer srv.Close()

	a := testMoMoAdapter(srv.URL)
	payment := &domain.Payment{ID: uuid.New(), Amount: 150000}
	order := &domain.Order{OrderNumber: "OWL000000050001"}

	res, err := a.Initiate(context.Background(), InitiateRequest{Payment: payment, Order: order})

	require.NoError(t, err)
	assert.Equal(t, payment.ID.String(), res.TransactionID)
	assert.Equal(t, "https://test-payment.momo.vn/pay/abc", res.PaymentURL)
	assert.Equal(t, "momo://app?action=pay", res.ProviderData["deeplink"])

	assert.Equal(t, "captureWallet", got.RequestType)
	assert.Equal(t, int64(150000), got.Amount, "MoMo amounts are unscaled VND")
	raw := fmt.Sprintf(
		"accessKey=access&amount=%d&extraData=&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=OWLSHOP&redirectUrl=%s&requestId=%s&requestType=captureWallet",
		got.Amount, got.IPNURL, got.OrderID, got.OrderInfo, got.RedirectURL, got.RequestID,
	)
	assert.Equal(t, signMoMo("secret", raw), got.Signature)
}

func TestMoMoInitiate_GatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(momoCreateResponse{ResultCode: 41, Message: "duplicate orderId"})
	}))
	defer srv.Close()

	a := testMoMoAdapter(srv.URL)
	_, err := a.Initiate(context.Background(), InitiateRequest{
		Payment: &domain.Payment{ID: uuid.New(), Amount: 100},
		Order:   &domain.Order{OrderNumber: "OWL000000050002"},
	})

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "duplicate orderId")
}

// signedMoMoIPN renders an IPN payload the adapter considers authentic.
func signedMoMoIPN(secret string, ipn momoIPN) []byte {
	raw := fmt.Sprintf(
		"accessKey=access&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		ipn.Amount, ipn.ExtraData, ipn.Message, ipn.OrderID, ipn.OrderInfo,
		ipn.OrderType, ipn.PartnerCode, ipn.PayType, ipn.RequestID, ipn.ResponseTime,
		ipn.ResultCode, ipn.TransID,
	)
	ipn.Signature = signMoMo(secret, raw)
	body, _ := json.Marshal(ipn)
	return body
}

func TestMoMoVerifyCallback_SuccessIPN(t *testing.T) {
	a := testMoMoAdapter("")
	body := signedMoMoIPN("secret", momoIPN{
		PartnerCode:  "OWLSHOP",
		OrderID:      "pay-777",
		RequestID:    "req-1",
		Amount:       150000,
		OrderInfo:    "Thanh toan don hang OWL1",
		OrderType:    "momo_wallet",
		TransID:      4088878653,
		ResultCode:   0,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: 1756170000000,
	})

	res, err := a.VerifyCallback(context.Background(), Callback{Body: body})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "pay-777", res.TransactionID)
	assert.Equal(t, int64(150000), res.Amount)
	assert.Equal(t, int64(4088878653), res.ProviderData["transId"])
}

func TestMoMoVerifyCallback_DeclinedIPN(t *testing.T) {
	a := testMoMoAdapter("")
	body := signedMoMoIPN("secret", momoIPN{
		PartnerCode: "OWLSHOP",
		OrderID:     "pay-777",
		Amount:      150000,
		ResultCode:  1006,
		Message:     "Transaction denied by user.",
	})

	res, err := a.VerifyCallback(context.Background(), Callback{Body: body})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.FailureReason, "denied by user")
	assert.Contains(t, res.FailureReason, "1006")
}

func TestMoMoVerifyCallback_InvalidSignature(t *testing.T) {
	a := testMoMoAdapter("")
	body, _ := json.Marshal(momoIPN{
		PartnerCode: "OWLSHOP",
		OrderID:     "pay-777",
		Amount:      150000,
		Signature:   "deadbeef",
	})

	_, err := a.VerifyCallback(context.Background(), Callback{Body: body})

	require.Error(t, err)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestMoMoVerifyCallback_ReturnRedirectParams(t *testing.T) {
	a := testMoMoAdapter("")
	ipn := momoIPN{
		PartnerCode:  "OWLSHOP",
		OrderID:      "pay-777",
		RequestID:    "req-1",
		Amount:       150000,
		OrderInfo:    "Thanh toan don hang OWL1",
		OrderType:    "momo_wallet",
		TransID:      4088878653,
		ResultCode:   0,
		Message:      "Successful.",
		PayType:      "webApp",
		ResponseTime: 1756170000000,
	}
	raw := fmt.Sprintf(
		"accessKey=access&amount=%d&extraData=&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		ipn.Amount, ipn.Message, ipn.OrderID, ipn.OrderInfo, ipn.OrderType,
		ipn.PartnerCode, ipn.PayType, ipn.RequestID, ipn.ResponseTime, ipn.ResultCode, ipn.TransID,
	)
	params := map[string]string{
		"partnerCode":  ipn.PartnerCode,
		"orderId":      ipn.OrderID,
		"requestId":    ipn.RequestID,
		"amount":       "150000",
		"orderInfo":    ipn.OrderInfo,
		"orderType":    ipn.OrderType,
		"transId":      "4088878653",
		"resultCode":   "0",
		"message":      ipn.Message,
		"payType":      ipn.PayType,
		"responseTime": "1756170000000",
		"signature":    signMoMo("secret", raw),
	}

	res, err := a.VerifyCallback(context.Background(), Callback{Params: params})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "pay-777", res.TransactionID)
}

func TestMoMoRefund_SignedCall(t *testing.T) {
	var got momoRefundRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/gateway/api/refund", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(momoRefundResponse{ResultCode: 0, TransID: 4088878700})
	}))
	defer srv.Close()

	a := testMoMoAdapter(srv.URL)
	payment := &domain.Payment{
		ID:     uuid.New(),
		Amount: 150000,
		// JSONB round trip turns numbers into float64.
		ProviderData: map[string]any{"transId": float64(4088878653)},
	}

	res, err := a.Refund(context.Background(), RefundRequest{
		Payment: payment,
		Refund:  &domain.PaymentRefund{Amount: 150000, Reason: "customer request"},
	})

	require.NoError(t, err)
	assert.Equal(t, "4088878700", res.ProviderRefundID)
	assert.Equal(t, int64(4088878653), got.TransID)

	raw := fmt.Sprintf(
		"accessKey=access&amount=%d&description=%s&orderId=%s&partnerCode=OWLSHOP&requestId=%s&transId=%d",
		got.Amount, got.Description, got.OrderID, got.RequestID, got.TransID,
	)
	assert.Equal(t, signMoMo("secret", raw), got.Signature)
}

func TestMoMoRefund_MissingTransID(t *testing.T) {
	a := testMoMoAdapter("")
	payment := &domain.Payment{ID: uuid.New(), Amount: 100, ProviderData: map[string]any{}}

	_, err := a.Refund(context.Background(), RefundRequest{
		Payment: payment,
		Refund:  &domain.PaymentRefund{Amount: 100},
	})

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
}

func TestProviderDataInt64(t *testing.T) {
	for _, v := range []any{int64(42), float64(42), json.Number("42"), "42"} {
		got, err := providerDataInt64(map[string]any{"transId": v}, "transId")
		require.NoError(t, err)
		assert.Equal(t, int64(42), got)
	}
	_, err := providerDataInt64(map[string]any{}, "transId")
	assert.Error(t, err)
}
