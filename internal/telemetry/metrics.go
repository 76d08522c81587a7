package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for checkout and payment
// observability.
type BusinessMetrics struct {
	// Checkout funnel
	CheckoutAttempts  *prometheus.CounterVec
	CheckoutCompleted *prometheus.CounterVec
	CheckoutFailed    *prometheus.CounterVec
	OrderValue        *prometheus.HistogramVec
	OrderItemCount    prometheus.Histogram

	// Orders
	OrdersCancelled *prometheus.CounterVec

	// Payments
	PaymentInitiated *prometheus.CounterVec
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec

	// Provider callbacks
	WebhookReceived         *prometheus.CounterVec
	WebhookInvalidSignature *prometheus.CounterVec
	WebhookProcessed        *prometheus.CounterVec

	// Refunds
	RefundsIssued *prometheus.CounterVec
	RefundsFailed *prometheus.CounterVec
	RefundAmount  *prometheus.CounterVec

	// Notifications
	NotificationsPublished *prometheus.CounterVec
	NotificationsFailed    *prometheus.CounterVec
}

// NewBusinessMetrics creates and registers all business metrics.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "owlshop"
	}

	subsystem := "business"

	return &BusinessMetrics{
		// =======================================================================
		// Checkout Funnel
		// =======================================================================
		CheckoutAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_attempts_total",
				Help:      "Total checkout submissions",
			},
			[]string{"payment_method"},
		),
		CheckoutCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_completed_total",
				Help:      "Total checkouts that produced an order",
			},
			[]string{"payment_method"},
		),
		CheckoutFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_failed_total",
				Help:      "Total rejected checkouts",
			},
			[]string{"payment_method", "reason"}, // reason: empty_cart, out_of_stock, invalid, internal
		),
		OrderValue: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value",
				Help:      "Order totals in whole currency units",
				Buckets:   prometheus.ExponentialBuckets(10_000, 4, 10),
			},
			[]string{"payment_method"},
		),
		OrderItemCount: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_item_count",
				Help:      "Total units per order",
				Buckets:   prometheus.LinearBuckets(1, 2, 10),
			},
		),

		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCancelled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_cancelled_total",
				Help:      "Total cancelled orders",
			},
			[]string{"payment_method"},
		),

		// =======================================================================
		// Payments
		// =======================================================================
		PaymentInitiated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_initiated_total",
				Help:      "Total payments handed to a provider",
			},
			[]string{"payment_method"},
		),
		PaymentSucceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_succeeded_total",
				Help:      "Total payments confirmed completed",
			},
			[]string{"payment_method"},
		),
		PaymentFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_failed_total",
				Help:      "Total payments marked failed",
			},
			[]string{"payment_method", "reason"}, // reason: gateway_declined, amount_mismatch, order_cancelled, initiation_error
		),

		// =======================================================================
		// Provider Callbacks
		// =======================================================================
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total provider callbacks received",
			},
			[]string{"provider", "channel"}, // channel: return, ipn, webhook
		),
		WebhookInvalidSignature: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_invalid_signature_total",
				Help:      "Total provider callbacks rejected for bad signatures",
			},
			[]string{"provider"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Total provider callbacks reconciled",
			},
			[]string{"provider", "outcome"}, // outcome: completed, duplicate, failed, ignored
		),

		// =======================================================================
		// Refunds
		// =======================================================================
		RefundsIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refunds_issued_total",
				Help:      "Total provider-confirmed refunds",
			},
			[]string{"payment_method"},
		),
		RefundsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refunds_failed_total",
				Help:      "Total refunds rejected by the provider",
			},
			[]string{"payment_method"},
		),
		RefundAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refund_amount_total",
				Help:      "Refunded value in whole currency units",
			},
			[]string{"payment_method"},
		),

		// =======================================================================
		// Notifications
		// =======================================================================
		NotificationsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "notifications_published_total",
				Help:      "Total order events published to the message bus",
			},
			[]string{"event"},
		),
		NotificationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "notifications_failed_total",
				Help:      "Total order events that failed to publish",
			},
			[]string{"event"},
		),
	}
}
