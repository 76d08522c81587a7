package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlshop/owlshop/internal/domain"
)

func testVNPayAdapter(apiURL string) *VNPayAdapter {
	return NewVNPayAdapter(VNPayConfig{
		TmnCode:    "OWLSHOP1",
		HashSecret: "topsecret",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		APIURL:     apiURL,
		ReturnURL:  "https://shop.example/payments/vnpay/return",
	}, nil)
}

func signVNPay(secret, payload string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVNPayInitiate_SignedURL(t *testing.T) {
	a := testVNPayAdapter("")
	payment := &domain.Payment{ID: uuid.New(), Amount: 150000}
	order := &domain.Order{OrderNumber: "OWL000000040001"}

	res, err := a.Initiate(context.Background(), InitiateRequest{
		Payment:  payment,
		Order:    order,
		ClientIP: "203.0.113.9",
	})

	require.NoError(t, err)
	assert.Equal(t, payment.ID.String(), res.TransactionID)

	u, err := url.Parse(res.PaymentURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "15000000", q.Get("vnp_Amount"), "amount scaled to hundredths")
	assert.Equal(t, "VND", q.Get("vnp_CurrCode"))
	assert.Equal(t, "2.1.0", q.Get("vnp_Version"))
	assert.Equal(t, payment.ID.String(), q.Get("vnp_TxnRef"))

	// The URL must verify under the same scheme the gateway applies.
	params := map[string]string{}
	for k := range q {
		if k == "vnp_SecureHash" {
			continue
		}
		params[k] = q.Get(k)
	}
	expected := signVNPay("topsecret", encodeSortedQuery(params))
	assert.Equal(t, expected, q.Get("vnp_SecureHash"))
}

// signedVNPayParams produces a callback the adapter considers authentic.
func signedVNPayParams(secret string, params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["vnp_SecureHash"] = signVNPay(secret, encodeSortedQuery(params))
	return out
}

func TestVNPayVerifyCallback_Success(t *testing.T) {
	a := testVNPayAdapter("")
	params := signedVNPayParams("topsecret", map[string]string{
		"vnp_TxnRef":       "pay-123",
		"vnp_Amount":       "15000000",
		"vnp_ResponseCode": "00",
		"vnp_BankCode":     "NCB",
		"vnp_PayDate":      "20260826103000",
	})

	res, err := a.VerifyCallback(context.Background(), Callback{Params: params})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "pay-123", res.TransactionID)
	assert.Equal(t, int64(150000), res.Amount, "amount unscaled back to whole VND")
	assert.Empty(t, res.FailureReason)
	assert.Equal(t, "NCB", res.ProviderData["vnp_BankCode"])
}

func TestVNPayVerifyCallback_CustomerCancelled(t *testing.T) {
	a := testVNPayAdapter("")
	params := signedVNPayParams("topsecret", map[string]string{
		"vnp_TxnRef":       "pay-123",
		"vnp_Amount":       "15000000",
		"vnp_ResponseCode": "24",
	})

	res, err := a.VerifyCallback(context.Background(), Callback{Params: params})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "customer cancelled the transaction", res.FailureReason)
}

func TestVNPayVerifyCallback_TamperedAmount(t *testing.T) {
	a := testVNPayAdapter("")
	params := signedVNPayParams("topsecret", map[string]string{
		"vnp_TxnRef":       "pay-123",
		"vnp_Amount":       "15000000",
		"vnp_ResponseCode": "00",
	})
	params["vnp_Amount"] = "100"

	_, err := a.VerifyCallback(context.Background(), Callback{Params: params})

	require.Error(t, err)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestVNPayVerifyCallback_MissingSignature(t *testing.T) {
	a := testVNPayAdapter("")

	_, err := a.VerifyCallback(context.Background(), Callback{Params: map[string]string{
		"vnp_TxnRef": "pay-123",
	}})

	require.Error(t, err)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestVNPayVerifyCallback_UppercaseSignatureAccepted(t *testing.T) {
	a := testVNPayAdapter("")
	params := signedVNPayParams("topsecret", map[string]string{
		"vnp_TxnRef":       "pay-123",
		"vnp_Amount":       "100",
		"vnp_ResponseCode": "00",
	})
	params["vnp_SecureHash"] = strings.ToUpper(params["vnp_SecureHash"])

	_, err := a.VerifyCallback(context.Background(), Callback{Params: params})

	require.NoError(t, err)
}

func TestVNPayRefund_FullAndPartial(t *testing.T) {
	var got vnpRefundRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(vnpAPIResponse{ResponseCode: "00", Message: "ok", TransactionNo: "14400001"})
	}))
	defer srv.Close()

	a := testVNPayAdapter(srv.URL)
	payment := &domain.Payment{
		ID:     uuid.New(),
		Amount: 150000,
		ProviderData: map[string]any{
			"vnp_PayDate":       "20260826103000",
			"vnp_TransactionNo": "14400000",
		},
	}

	res, err := a.Refund(context.Background(), RefundRequest{
		Payment: payment,
		Refund:  &domain.PaymentRefund{Amount: 150000, Reason: "customer request"},
	})
	require.NoError(t, err)
	assert.Equal(t, "14400001", res.ProviderRefundID)
	assert.Equal(t, vnpRefundFull, got.TransactionType)
	assert.Equal(t, int64(15000000), got.Amount)
	assert.Equal(t, "20260826103000", got.TransactionDate)

	// The merchant API signs pipe-joined values in fixed order.
	expected := signVNPay("topsecret", strings.Join([]string{
		got.RequestID, got.Version, got.Command, got.TmnCode, got.TransactionType,
		got.TxnRef, "15000000", got.TransactionNo,
		got.TransactionDate, got.CreateBy, got.CreateDate, got.IPAddr, got.OrderInfo,
	}, "|"))
	assert.Equal(t, expected, got.SecureHash)

	_, err = a.Refund(context.Background(), RefundRequest{
		Payment: payment,
		Refund:  &domain.PaymentRefund{Amount: 50000, Reason: "damaged item"},
	})
	require.NoError(t, err)
	assert.Equal(t, vnpRefundPartial, got.TransactionType)
}

func TestVNPayRefund_NoTransactionDate(t *testing.T) {
	a := testVNPayAdapter("")
	payment := &domain.Payment{ID: uuid.New(), Amount: 100, ProviderData: map[string]any{}}

	_, err := a.Refund(context.Background(), RefundRequest{
		Payment: payment,
		Refund:  &domain.PaymentRefund{Amount: 100},
	})

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
}

func TestVNPayRefund_GatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(vnpAPIResponse{ResponseCode: "91", Message: "transaction not found"})
	}))
	defer srv.Close()

	a := testVNPayAdapter(srv.URL)
	payment := &domain.Payment{
		ID:           uuid.New(),
		Amount:       100,
		ProviderData: map[string]any{"vnp_PayDate": "20260826103000"},
	}

	_, err := a.Refund(context.Background(), RefundRequest{
		Payment: payment,
		Refund:  &domain.PaymentRefund{Amount: 100},
	})

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "transaction not found")
}

func TestEncodeSortedQuery(t *testing.T) {
	got := encodeSortedQuery(map[string]string{
		"vnp_OrderInfo": "Thanh toan don hang OWL1",
		"vnp_Amount":    "100",
		"vnp_IpAddr":    "",
	})
	assert.Equal(t, "vnp_Amount=100&vnp_OrderInfo=Thanh+toan+don+hang+OWL1", got, "sorted, plus-encoded, empty values dropped")
}
