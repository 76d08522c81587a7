package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/owlshop/owlshop/internal/domain"
)

// MoMoConfig holds the partner credentials and endpoints for the MoMo
// wallet gateway.
type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	ReturnURL   string
	IPNURL      string
}

// MoMoAdapter implements the MoMo wallet flow: a server-to-server create
// call returning a pay URL, then a signed JSON IPN webhook.
//
// Signing scheme: HMAC-SHA256 over a raw string of key=value pairs in the
// fixed field order MoMo documents per message type (not sorted, not
// URL-encoded).
type MoMoAdapter struct {
	cfg    MoMoConfig
	client *http.Client
}

const momoRequestType = "captureWallet"

// NewMoMoAdapter creates the adapter. Pass nil to use a default client
// with a 30 second timeout.
func NewMoMoAdapter(cfg MoMoConfig, client *http.Client) *MoMoAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &MoMoAdapter{cfg: cfg, client: client}
}

func (a *MoMoAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodMoMo }

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	Deeplink   string `json:"deeplink"`
	QRCodeURL  string `json:"qrCodeUrl"`
	OrderID    string `json:"orderId"`
	RequestID  string `json:"requestId"`
}

func (a *MoMoAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	const op = "provider.momo.Initiate"

	orderID := req.Payment.ID.String()
	requestID := uuid.New().String()
	orderInfo := fmt.Sprintf("Thanh toan don hang %s", req.Order.OrderNumber)

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		a.cfg.AccessKey, req.Payment.Amount, "", a.cfg.IPNURL, orderID, orderInfo,
		a.cfg.PartnerCode, a.cfg.ReturnURL, requestID, momoRequestType,
	)

	body := momoCreateRequest{
		PartnerCode: a.cfg.PartnerCode,
		RequestID:   requestID,
		Amount:      req.Payment.Amount,
		OrderID:     orderID,
		OrderInfo:   orderInfo,
		RedirectURL: a.cfg.ReturnURL,
		IPNURL:      a.cfg.IPNURL,
		ExtraData:   "",
		RequestType: momoRequestType,
		Lang:        "vi",
		Signature:   a.sign(raw),
	}

	var resp momoCreateResponse
	if err := a.post(ctx, a.cfg.Endpoint+"/v2/gateway/api/create", body, &resp); err != nil {
		return nil, domain.Errorf(domain.EPAYMENT, op, "gateway unreachable: %v", err)
	}
	if resp.ResultCode != 0 {
		return nil, domain.Errorf(domain.EPAYMENT, op, "gateway rejected payment: %s (code %d)", resp.Message, resp.ResultCode)
	}

	return &InitiateResult{
		TransactionID: orderID,
		PaymentURL:    resp.PayURL,
		ProviderData: map[string]any{
			"requestId": requestID,
			"orderId":   orderID,
			"payUrl":    resp.PayURL,
			"deeplink":  resp.Deeplink,
			"qrCodeUrl": resp.QRCodeURL,
		},
	}, nil
}

// momoIPN is the webhook payload. Numeric fields arrive as JSON numbers
// and are re-rendered with %d when rebuilding the signed string.
type momoIPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// VerifyCallback handles both delivery shapes: the IPN webhook posts a
// JSON body, the buyer return redirect carries the same fields as query
// parameters.
func (a *MoMoAdapter) VerifyCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	const op = "provider.momo.VerifyCallback"

	var ipn momoIPN
	if len(cb.Body) > 0 {
		if err := json.Unmarshal(cb.Body, &ipn); err != nil {
			return nil, domain.Invalid(op, "malformed webhook payload")
		}
	} else {
		parsed, err := momoIPNFromParams(cb.Params)
		if err != nil {
			return nil, domain.Invalid(op, "malformed return parameters")
		}
		ipn = parsed
	}
	if ipn.Signature == "" {
		return nil, domain.Unauthorized(op, "missing signature")
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		a.cfg.AccessKey, ipn.Amount, ipn.ExtraData, ipn.Message, ipn.OrderID, ipn.OrderInfo,
		ipn.OrderType, ipn.PartnerCode, ipn.PayType, ipn.RequestID, ipn.ResponseTime,
		ipn.ResultCode, ipn.TransID,
	)
	expected := a.sign(raw)
	if !hmac.Equal([]byte(expected), []byte(ipn.Signature)) {
		return nil, domain.Unauthorized(op, "invalid signature")
	}

	failure := ""
	if ipn.ResultCode != 0 {
		failure = fmt.Sprintf("%s (code %d)", ipn.Message, ipn.ResultCode)
	}

	return &CallbackResult{
		TransactionID: ipn.OrderID,
		Success:       ipn.ResultCode == 0,
		Amount:        ipn.Amount,
		FailureReason: failure,
		ProviderData: map[string]any{
			"transId":      ipn.TransID,
			"payType":      ipn.PayType,
			"resultCode":   ipn.ResultCode,
			"message":      ipn.Message,
			"responseTime": ipn.ResponseTime,
		},
	}, nil
}

// momoIPNFromParams rebuilds the IPN payload from return-redirect query
// parameters.
func momoIPNFromParams(params map[string]string) (momoIPN, error) {
	ipn := momoIPN{
		PartnerCode: params["partnerCode"],
		OrderID:     params["orderId"],
		RequestID:   params["requestId"],
		OrderInfo:   params["orderInfo"],
		OrderType:   params["orderType"],
		Message:     params["message"],
		PayType:     params["payType"],
		ExtraData:   params["extraData"],
		Signature:   params["signature"],
	}
	var err error
	if ipn.Amount, err = strconv.ParseInt(params["amount"], 10, 64); err != nil {
		return momoIPN{}, err
	}
	if ipn.ResultCode, err = strconv.Atoi(params["resultCode"]); err != nil {
		return momoIPN{}, err
	}
	if v := params["transId"]; v != "" {
		if ipn.TransID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return momoIPN{}, err
		}
	}
	if v := params["responseTime"]; v != "" {
		if ipn.ResponseTime, err = strconv.ParseInt(v, 10, 64); err != nil {
			return momoIPN{}, err
		}
	}
	return ipn, nil
}

type momoRefundRequest struct {
	PartnerCode string `json:"partnerCode"`
	OrderID     string `json:"orderId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	TransID     int64  `json:"transId"`
	Lang        string `json:"lang"`
	Description string `json:"description"`
	Signature   string `json:"signature"`
}

type momoRefundResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	TransID    int64  `json:"transId"`
}

func (a *MoMoAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	const op = "provider.momo.Refund"

	transID, err := providerDataInt64(req.Payment.ProviderData, "transId")
	if err != nil {
		return nil, domain.Errorf(domain.EPAYMENT, op, "payment has no gateway transaction id")
	}

	orderID := uuid.New().String()
	requestID := uuid.New().String()

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&description=%s&orderId=%s&partnerCode=%s&requestId=%s&transId=%d",
		a.cfg.AccessKey, req.Refund.Amount, req.Refund.Reason, orderID,
		a.cfg.PartnerCode, requestID, transID,
	)

	body := momoRefundRequest{
		PartnerCode: a.cfg.PartnerCode,
		OrderID:     orderID,
		RequestID:   requestID,
		Amount:      req.Refund.Amount,
		TransID:     transID,
		Lang:        "vi",
		Description: req.Refund.Reason,
		Signature:   a.sign(raw),
	}

	var resp momoRefundResponse
	if err := a.post(ctx, a.cfg.Endpoint+"/v2/gateway/api/refund", body, &resp); err != nil {
		return nil, domain.Errorf(domain.EPAYMENT, op, "gateway unreachable: %v", err)
	}
	if resp.ResultCode != 0 {
		return nil, domain.Errorf(domain.EPAYMENT, op, "gateway rejected refund: %s (code %d)", resp.Message, resp.ResultCode)
	}

	return &RefundResult{
		ProviderRefundID: strconv.FormatInt(resp.TransID, 10),
		ProviderData: map[string]any{
			"refundOrderId":   orderID,
			"refundRequestId": requestID,
			"refundTransId":   resp.TransID,
		},
	}, nil
}

func (a *MoMoAdapter) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *MoMoAdapter) post(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// providerDataInt64 reads a numeric field from a JSONB-roundtripped
// provider data map, where numbers come back as float64.
func providerDataInt64(data map[string]any, key string) (int64, error) {
	v, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T for %q", v, key)
	}
}
