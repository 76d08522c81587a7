package internal

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/owlshop/owlshop/internal/provider"
)

// Config is the full service configuration, sourced from the environment
// (optionally via a .env file in development).
type Config struct {
	Env      string
	LogLevel string
	Port     uint16

	DatabaseURL string
	NATSURL     string

	// MetricsNamespace prefixes every Prometheus metric name.
	MetricsNamespace string

	// ShippingFee is the flat per-order delivery fee in whole currency
	// units. Currency is the ledger currency code (lowercase ISO 4217).
	ShippingFee int64
	Currency    string

	VNPay  provider.VNPayConfig
	MoMo   provider.MoMoConfig
	Stripe provider.StripeConfig
}

// NewConfig loads configuration. Every key can be overridden via
// environment variables; .env is a development convenience only.
func NewConfig() (*Config, error) {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 8080)
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("METRICS_NAMESPACE", "owlshop")
	v.SetDefault("SHIPPING_FEE", 30000)
	v.SetDefault("CURRENCY", "vnd")

	v.SetDefault("VNPAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
	v.SetDefault("VNPAY_API_URL", "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction")
	v.SetDefault("MOMO_ENDPOINT", "https://test-payment.momo.vn")

	cfg := &Config{
		Env:              v.GetString("ENV"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		Port:             uint16(v.GetUint32("PORT")),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		NATSURL:          v.GetString("NATS_URL"),
		MetricsNamespace: v.GetString("METRICS_NAMESPACE"),
		ShippingFee:      v.GetInt64("SHIPPING_FEE"),
		Currency:         v.GetString("CURRENCY"),
		VNPay: provider.VNPayConfig{
			TmnCode:    v.GetString("VNPAY_TMN_CODE"),
			HashSecret: v.GetString("VNPAY_HASH_SECRET"),
			PayURL:     v.GetString("VNPAY_PAY_URL"),
			APIURL:     v.GetString("VNPAY_API_URL"),
			ReturnURL:  v.GetString("VNPAY_RETURN_URL"),
		},
		MoMo: provider.MoMoConfig{
			PartnerCode: v.GetString("MOMO_PARTNER_CODE"),
			AccessKey:   v.GetString("MOMO_ACCESS_KEY"),
			SecretKey:   v.GetString("MOMO_SECRET_KEY"),
			Endpoint:    v.GetString("MOMO_ENDPOINT"),
			ReturnURL:   v.GetString("MOMO_RETURN_URL"),
			IPNURL:      v.GetString("MOMO_IPN_URL"),
		},
		Stripe: provider.StripeConfig{
			APIKey:        v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    v.GetString("STRIPE_SUCCESS_URL"),
			CancelURL:     v.GetString("STRIPE_CANCEL_URL"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}
