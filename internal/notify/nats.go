// Package notify publishes order events to NATS. Delivery of the actual
// customer notification (email, SMS) happens downstream; checkout only
// fires the event and never blocks on it.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/owlshop/owlshop/internal/domain"
)

// SubjectOrderConfirmed carries order confirmation events.
const SubjectOrderConfirmed = "orders.confirmed"

// OrderConfirmedEvent is the wire payload for a confirmed order.
type OrderConfirmedEvent struct {
	OrderNumber   string    `json:"order_number"`
	UserID        int64     `json:"user_id"`
	RecipientName string    `json:"recipient_name"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone"`
	PaymentMethod string    `json:"payment_method"`
	Total         int64     `json:"total"`
	ItemCount     int32     `json:"item_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Publisher implements domain.NotificationSender over a NATS connection.
type Publisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

var _ domain.NotificationSender = (*Publisher)(nil)

// NewPublisher creates a Publisher.
func NewPublisher(conn *nats.Conn, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// SendOrderConfirmation publishes the order confirmation event.
func (p *Publisher) SendOrderConfirmation(ctx context.Context, o *domain.Order) error {
	payload, err := json.Marshal(OrderConfirmedEvent{
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		RecipientName: o.RecipientName,
		Email:         o.Email,
		Phone:         o.Phone,
		PaymentMethod: string(o.PaymentMethod),
		Total:         o.Total,
		ItemCount:     o.ItemCount(),
		CreatedAt:     o.CreatedAt,
	})
	if err != nil {
		return err
	}
	if err := p.conn.Publish(SubjectOrderConfirmed, payload); err != nil {
		return err
	}
	p.logger.Debug().Str("order_number", o.OrderNumber).Msg("order confirmation published")
	return nil
}
