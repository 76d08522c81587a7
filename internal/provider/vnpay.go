package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/owlshop/owlshop/internal/domain"
)

// VNPayConfig holds the merchant credentials and endpoints for the VNPay
// redirect gateway. APIURL is the merchant web API used for refunds and
// transaction queries; PayURL is the buyer-facing redirect endpoint.
type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	APIURL     string
	ReturnURL  string
}

// VNPayAdapter implements the VNPay redirect flow: a signed payment URL
// the buyer is sent to, then signed return/IPN callbacks delivered as
// query parameters.
//
// Signing scheme: parameters are sorted lexicographically by key,
// URL-encoded as key=value pairs joined with '&', and the whole string is
// HMAC-SHA512'd with the merchant hash secret. vnp_SecureHash and
// vnp_SecureHashType are always excluded from the signed payload.
type VNPayAdapter struct {
	cfg    VNPayConfig
	loc    *time.Location
	client *http.Client
}

// VNPay amounts are expressed in hundredths of a VND on the wire.
const vnpAmountScale = 100

const vnpVersion = "2.1.0"

// NewVNPayAdapter creates the adapter. Pass nil to use a default client
// with a 30 second timeout for merchant API calls.
func NewVNPayAdapter(cfg VNPayConfig, client *http.Client) *VNPayAdapter {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		loc = time.FixedZone("ICT", 7*3600)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &VNPayAdapter{cfg: cfg, loc: loc, client: client}
}

func (a *VNPayAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodVNPay }

func (a *VNPayAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	txnRef := req.Payment.ID.String()
	params := map[string]string{
		"vnp_Version":    vnpVersion,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    a.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Payment.Amount*vnpAmountScale, 10),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     txnRef,
		"vnp_OrderInfo":  fmt.Sprintf("Thanh toan don hang %s", req.Order.OrderNumber),
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  a.cfg.ReturnURL,
		"vnp_IpAddr":     req.ClientIP,
		"vnp_CreateDate": time.Now().In(a.loc).Format("20060102150405"),
	}

	query := encodeSortedQuery(params)
	sig := a.sign(query)
	payURL := a.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + sig

	return &InitiateResult{
		TransactionID: txnRef,
		PaymentURL:    payURL,
		ProviderData: map[string]any{
			"vnp_TxnRef":     txnRef,
			"vnp_Amount":     params["vnp_Amount"],
			"vnp_CreateDate": params["vnp_CreateDate"],
		},
	}, nil
}

func (a *VNPayAdapter) VerifyCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	const op = "provider.vnpay.VerifyCallback"

	received := cb.Params["vnp_SecureHash"]
	if received == "" {
		return nil, domain.Unauthorized(op, "missing signature")
	}

	signed := make(map[string]string, len(cb.Params))
	for k, v := range cb.Params {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		signed[k] = v
	}
	expected := a.sign(encodeSortedQuery(signed))
	if !hmac.Equal([]byte(strings.ToLower(expected)), []byte(strings.ToLower(received))) {
		return nil, domain.Unauthorized(op, "invalid signature")
	}

	rawAmount, err := strconv.ParseInt(cb.Params["vnp_Amount"], 10, 64)
	if err != nil {
		return nil, domain.Invalid(op, "malformed vnp_Amount")
	}

	code := cb.Params["vnp_ResponseCode"]
	data := make(map[string]any, len(signed))
	for k, v := range signed {
		data[k] = v
	}

	return &CallbackResult{
		TransactionID: cb.Params["vnp_TxnRef"],
		Success:       code == "00",
		Amount:        rawAmount / vnpAmountScale,
		FailureReason: vnpResponseMessage(code),
		ProviderData:  data,
	}, nil
}

// vnpRefundRequest is the merchant web API refund message. Unlike the
// redirect flow, the API signs a pipe-joined value list in a fixed field
// order rather than a sorted query string.
type vnpRefundRequest struct {
	RequestID       string `json:"vnp_RequestId"`
	Version         string `json:"vnp_Version"`
	Command         string `json:"vnp_Command"`
	TmnCode         string `json:"vnp_TmnCode"`
	TransactionType string `json:"vnp_TransactionType"`
	TxnRef          string `json:"vnp_TxnRef"`
	Amount          int64  `json:"vnp_Amount"`
	OrderInfo       string `json:"vnp_OrderInfo"`
	TransactionNo   string `json:"vnp_TransactionNo"`
	TransactionDate string `json:"vnp_TransactionDate"`
	CreateBy        string `json:"vnp_CreateBy"`
	CreateDate      string `json:"vnp_CreateDate"`
	IPAddr          string `json:"vnp_IpAddr"`
	SecureHash      string `json:"vnp_SecureHash"`
}

type vnpAPIResponse struct {
	ResponseCode  string `json:"vnp_ResponseCode"`
	Message       string `json:"vnp_Message"`
	TransactionNo string `json:"vnp_TransactionNo"`
}

// Full refunds use transaction type 02, partial refunds 03.
const (
	vnpRefundFull    = "02"
	vnpRefundPartial = "03"
)

func (a *VNPayAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	const op = "provider.vnpay.Refund"

	txnDate, _ := req.Payment.ProviderData["vnp_PayDate"].(string)
	if txnDate == "" {
		txnDate, _ = req.Payment.ProviderData["vnp_CreateDate"].(string)
	}
	if txnDate == "" {
		return nil, domain.Errorf(domain.EPAYMENT, op, "payment has no gateway transaction date")
	}
	transactionNo, _ := req.Payment.ProviderData["vnp_TransactionNo"].(string)

	txnType := vnpRefundFull
	if req.Refund.Amount < req.Payment.Amount {
		txnType = vnpRefundPartial
	}

	msg := vnpRefundRequest{
		RequestID:       strconv.FormatInt(time.Now().UnixNano(), 10),
		Version:         vnpVersion,
		Command:         "refund",
		TmnCode:         a.cfg.TmnCode,
		TransactionType: txnType,
		TxnRef:          req.Payment.ID.String(),
		Amount:          req.Refund.Amount * vnpAmountScale,
		OrderInfo:       req.Refund.Reason,
		TransactionNo:   transactionNo,
		TransactionDate: txnDate,
		CreateBy:        "system",
		CreateDate:      time.Now().In(a.loc).Format("20060102150405"),
		IPAddr:          "127.0.0.1",
	}
	msg.SecureHash = a.sign(strings.Join([]string{
		msg.RequestID, msg.Version, msg.Command, msg.TmnCode, msg.TransactionType,
		msg.TxnRef, strconv.FormatInt(msg.Amount, 10), msg.TransactionNo,
		msg.TransactionDate, msg.CreateBy, msg.CreateDate, msg.IPAddr, msg.OrderInfo,
	}, "|"))

	var resp vnpAPIResponse
	if err := a.post(ctx, msg, &resp); err != nil {
		return nil, domain.Errorf(domain.EPAYMENT, op, "merchant api unreachable: %v", err)
	}
	if resp.ResponseCode != "00" {
		return nil, domain.Errorf(domain.EPAYMENT, op, "gateway rejected refund: %s (code %s)", resp.Message, resp.ResponseCode)
	}

	return &RefundResult{
		ProviderRefundID: resp.TransactionNo,
		ProviderData: map[string]any{
			"vnp_RequestId":     msg.RequestID,
			"vnp_TransactionNo": resp.TransactionNo,
		},
	}, nil
}

func (a *VNPayAdapter) post(ctx context.Context, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(payload))
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

func (a *VNPayAdapter) sign(payload string) string {
	mac := hmac.New(sha512.New, []byte(a.cfg.HashSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// encodeSortedQuery renders params as a query string with keys in
// lexicographic order, skipping empty values. The encoding must match
// what the gateway signs on its side, including '+' for spaces.
func encodeSortedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// vnpResponseMessage maps gateway response codes to operator-readable
// failure reasons. Empty for success.
func vnpResponseMessage(code string) string {
	switch code {
	case "00":
		return ""
	case "07":
		return "transaction suspected of fraud"
	case "09":
		return "card not registered for internet banking"
	case "10":
		return "card authentication failed more than 3 times"
	case "11":
		return "payment window expired"
	case "12":
		return "card or account is locked"
	case "13":
		return "wrong OTP entered"
	case "24":
		return "customer cancelled the transaction"
	case "51":
		return "insufficient account balance"
	case "65":
		return "daily transaction limit exceeded"
	case "75":
		return "issuing bank is under maintenance"
	case "79":
		return "wrong payment password entered too many times"
	case "99":
		return "unknown gateway error"
	default:
		return "payment failed with gateway code " + code
	}
}
