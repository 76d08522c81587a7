package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// OrderStatus is the fulfillment state of an order.
// Fulfillment status is independent of payment status.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipping   OrderStatus = "shipping"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderPaymentStatus tracks whether money has been collected for an order.
type OrderPaymentStatus string

const (
	OrderUnpaid   OrderPaymentStatus = "unpaid"
	OrderPaid     OrderPaymentStatus = "paid"
	OrderRefunded OrderPaymentStatus = "refunded"
)

// Order is one purchase transaction. Amounts are whole currency units
// (VND-style, no fractional minor units).
type Order struct {
	ID          int64
	UserID      int64
	OrderNumber string

	Status        OrderStatus
	PaymentMethod PaymentMethod
	PaymentStatus OrderPaymentStatus

	// Shipping info
	RecipientName string
	Phone         string
	Email         string
	Address       string
	City          string
	District      string
	Ward          string
	Note          string

	Subtotal    int64
	ShippingFee int64
	Discount    int64
	Total       int64

	Items []OrderItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is a line snapshot, immutable after creation. Product name,
// image and price are denormalized at purchase time so historical orders
// stay stable if the product changes or is removed. ProductID is a weak
// reference for display only; nil once the product is deleted.
type OrderItem struct {
	ID           int64
	OrderID      int64
	ProductID    *int64
	ProductName  string
	ProductImage string
	Quantity     int32
	Price        int64
}

// Subtotal returns the line total at the snapshotted unit price.
func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// RecalculateTotals recomputes subtotal and total from the order's items.
// Invariant: total == subtotal + shipping_fee - discount, never negative.
func (o *Order) RecalculateTotals() error {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.Subtotal()
	}
	o.Subtotal = subtotal
	o.Total = subtotal + o.ShippingFee - o.Discount
	if o.Total < 0 {
		return Errorf(EINVALID, "order.totals", "order total would be negative (subtotal=%d shipping=%d discount=%d)", subtotal, o.ShippingFee, o.Discount)
	}
	return nil
}

// ItemCount returns the total quantity across all items.
func (o *Order) ItemCount() int32 {
	var n int32
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// CanCancel reports whether the order is still cancellable.
// Cancelled is terminal and only reachable from pending or confirmed.
func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// GenerateOrderNumber produces a unique human-readable order number,
// e.g. OWL173562849107. Collisions are guarded by the unique constraint
// on orders.order_number.
func GenerateOrderNumber() string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	if len(ts) > 8 {
		ts = ts[len(ts)-8:]
	}
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to the sub-second clock rather than aborting checkout.
		n = big.NewInt(time.Now().UnixNano() % 10000)
	}
	return fmt.Sprintf("OWL%s%04d", ts, n.Int64())
}

// ValidOrderStatus reports whether s is a known fulfillment status.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipping, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}
