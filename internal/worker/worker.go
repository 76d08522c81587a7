// Package worker consumes order events off NATS and dispatches customer
// notifications. It runs in-process with the server but is independent
// of the request path; a lost or slow consumer never affects checkout.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/notify"
)

// Config holds worker configuration.
type Config struct {
	// WorkerID uniquely identifies this worker instance in logs.
	WorkerID string

	// QueueGroup makes multiple instances share the subscription, so each
	// event is handled once across the deployment.
	QueueGroup string
}

// Worker consumes order confirmation events.
type Worker struct {
	config Config
	conn   *nats.Conn
	logger zerolog.Logger

	sub *nats.Subscription
}

// NewWorker creates a notification worker.
func NewWorker(conn *nats.Conn, config Config, logger zerolog.Logger) *Worker {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if config.QueueGroup == "" {
		config.QueueGroup = "order-notifications"
	}
	return &Worker{
		config: config,
		conn:   conn,
		logger: logger.With().Str("component", "worker").Str("worker_id", config.WorkerID).Logger(),
	}
}

// Start subscribes and processes events until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	sub, err := w.conn.QueueSubscribe(notify.SubjectOrderConfirmed, w.config.QueueGroup, w.handleOrderConfirmed)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", notify.SubjectOrderConfirmed, err)
	}
	w.sub = sub

	w.logger.Info().
		Str("subject", notify.SubjectOrderConfirmed).
		Str("queue_group", w.config.QueueGroup).
		Msg("worker started")

	<-ctx.Done()

	if err := w.sub.Drain(); err != nil {
		w.logger.Error().Err(err).Msg("subscription drain failed")
	}
	w.logger.Info().Msg("worker stopped")
	return nil
}

func (w *Worker) handleOrderConfirmed(msg *nats.Msg) {
	var event notify.OrderConfirmedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		w.logger.Error().Err(err).Msg("malformed order confirmation event")
		return
	}

	// Notification channels (email, SMS) hang off here; for now the
	// dispatch is recorded so downstream delivery can be audited.
	w.logger.Info().
		Str("order_number", event.OrderNumber).
		Int64("user_id", event.UserID).
		Str("payment_method", event.PaymentMethod).
		Int64("total", event.Total).
		Msg("order confirmation dispatched")
}
