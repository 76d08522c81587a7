package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/provider"
	"github.com/owlshop/owlshop/internal/telemetry"
)

// Shared metrics registry for the whole test binary; promauto registers
// globally and double registration panics.
var testMetrics = telemetry.NewBusinessMetrics("owlshop_test")

// ============================================================================
// In-memory store
// ============================================================================

// memStore implements LedgerStore, PaymentStore and CartStore with
// rollback-on-error transaction semantics, so atomicity violations show
// up as real test failures.
type memStore struct {
	products map[int64]domain.Product
	orders   map[int64]*domain.Order
	carts    map[int64][]domain.CartItem
	payments map[uuid.UUID]*domain.Payment
	refunds  map[int64]*domain.PaymentRefund

	nextOrderID  int64
	nextRefundID int64
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]*domain.Order),
		carts:    make(map[int64][]domain.CartItem),
		payments: make(map[uuid.UUID]*domain.Payment),
		refunds:  make(map[int64]*domain.PaymentRefund),
	}
}

var (
	_ domain.LedgerStore  = (*memStore)(nil)
	_ domain.PaymentStore = (*memStore)(nil)
	_ domain.CartStore    = (*memStore)(nil)
)

func (s *memStore) snapshot() *memStore {
	cp := newMemStore()
	cp.nextOrderID = s.nextOrderID
	cp.nextRefundID = s.nextRefundID
	for k, v := range s.products {
		cp.products[k] = v
	}
	for k, v := range s.orders {
		o := *v
		o.Items = append([]domain.OrderItem(nil), v.Items...)
		cp.orders[k] = &o
	}
	for k, v := range s.carts {
		cp.carts[k] = append([]domain.CartItem(nil), v...)
	}
	for k, v := range s.payments {
		p := *v
		cp.payments[k] = &p
	}
	for k, v := range s.refunds {
		r := *v
		cp.refunds[k] = &r
	}
	return cp
}

func (s *memStore) restore(snap *memStore) {
	s.products = snap.products
	s.orders = snap.orders
	s.carts = snap.carts
	s.payments = snap.payments
	s.refunds = snap.refunds
	s.nextOrderID = snap.nextOrderID
	s.nextRefundID = snap.nextRefundID
}

func (s *memStore) RunInTx(ctx context.Context, fn func(tx domain.CheckoutTx) error) error {
	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.NotFound("memStore.GetOrder", "order", "?")
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) GetUserOrderByNumber(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error) {
	for _, o := range s.orders {
		if o.UserID == userID && o.OrderNumber == orderNumber {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.NotFound("memStore.GetUserOrderByNumber", "order", orderNumber)
}

func (s *memStore) ListUserOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) GetItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	return append([]domain.CartItem(nil), s.carts[userID]...), nil
}

// ---------------------------------------------------------------------------
// PaymentStore
// ---------------------------------------------------------------------------

func (s *memStore) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ProviderData == nil {
		p.ProviderData = map[string]any{}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *memStore) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, domain.NotFound("memStore.GetPayment", "payment", id.String())
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	for _, p := range s.payments {
		if p.TransactionID == transactionID && transactionID != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.NotFound("memStore.GetPaymentByTransactionID", "payment", transactionID)
}

func (s *memStore) MarkPaymentInitiated(ctx context.Context, id uuid.UUID, transactionID, paymentURL string, providerData map[string]any) error {
	p, ok := s.payments[id]
	if !ok {
		return domain.NotFound("memStore.MarkPaymentInitiated", "payment", id.String())
	}
	p.Status = domain.PaymentProcessing
	p.TransactionID = transactionID
	p.PaymentURL = paymentURL
	for k, v := range providerData {
		p.ProviderData[k] = v
	}
	return nil
}

func (s *memStore) MarkPaymentCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	p, ok := s.payments[id]
	if !ok {
		return false, domain.NotFound("memStore.MarkPaymentCompleted", "payment", id.String())
	}
	if p.Status == domain.PaymentCompleted {
		return true, nil
	}
	if o, ok := s.orders[p.OrderID]; ok && o.Status == domain.OrderStatusCancelled {
		return false, domain.ErrOrderCancelled
	}
	now := time.Now()
	p.Status = domain.PaymentCompleted
	p.PaidAt = &now
	if o, ok := s.orders[p.OrderID]; ok {
		o.PaymentStatus = domain.OrderPaid
	}
	return false, nil
}

func (s *memStore) MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string) error {
	p, ok := s.payments[id]
	if !ok {
		return domain.NotFound("memStore.MarkPaymentFailed", "payment", id.String())
	}
	if p.Status == domain.PaymentCompleted || p.Status == domain.PaymentRefunded {
		return nil
	}
	p.Status = domain.PaymentFailed
	p.ProviderData["failure_reason"] = reason
	return nil
}

func (s *memStore) MergeProviderData(ctx context.Context, id uuid.UUID, data map[string]any) error {
	p, ok := s.payments[id]
	if !ok {
		return domain.NotFound("memStore.MergeProviderData", "payment", id.String())
	}
	for k, v := range data {
		p.ProviderData[k] = v
	}
	return nil
}

func (s *memStore) CreateRefund(ctx context.Context, r *domain.PaymentRefund) error {
	s.nextRefundID++
	r.ID = s.nextRefundID
	if r.ProviderData == nil {
		r.ProviderData = map[string]any{}
	}
	cp := *r
	s.refunds[r.ID] = &cp
	return nil
}

func (s *memStore) CompleteRefund(ctx context.Context, refundID int64, providerRefundID string, providerData map[string]any) error {
	r, ok := s.refunds[refundID]
	if !ok {
		return domain.NotFound("memStore.CompleteRefund", "refund", "?")
	}
	r.Status = domain.RefundCompleted
	r.RefundID = providerRefundID
	if p, ok := s.payments[r.PaymentID]; ok && p.Status == domain.PaymentCompleted && r.Amount == p.Amount {
		p.Status = domain.PaymentRefunded
	}
	return nil
}

func (s *memStore) FailRefund(ctx context.Context, refundID int64, errDetail string) error {
	r, ok := s.refunds[refundID]
	if !ok {
		return domain.NotFound("memStore.FailRefund", "refund", "?")
	}
	r.Status = domain.RefundFailed
	r.ProviderData["error"] = errDetail
	return nil
}

// ---------------------------------------------------------------------------
// CheckoutTx
// ---------------------------------------------------------------------------

type memTx struct {
	s *memStore
}

func (t *memTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product)
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) CreateOrder(ctx context.Context, o *domain.Order) error {
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	cp.Items = nil
	t.s.orders[o.ID] = &cp
	return nil
}

func (t *memTx) CreateOrderItems(ctx context.Context, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	o, ok := t.s.orders[items[0].OrderID]
	if !ok {
		return errors.New("order missing")
	}
	o.Items = append(o.Items, items...)
	return nil
}

func (t *memTx) ReserveStock(ctx context.Context, productID int64, qty int32) error {
	p, ok := t.s.products[productID]
	if !ok || p.Stock < qty {
		return domain.ErrOutOfStock
	}
	p.Stock -= qty
	t.s.products[productID] = p
	return nil
}

func (t *memTx) RestoreStock(ctx context.Context, productID int64, qty int32) error {
	p, ok := t.s.products[productID]
	if !ok {
		return nil
	}
	p.Stock += qty
	t.s.products[productID] = p
	return nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return domain.NotFound("memTx.SetOrderStatus", "order", "?")
	}
	o.Status = status
	return nil
}

func (t *memTx) GetUserOrderByNumberForUpdate(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error) {
	for _, o := range t.s.orders {
		if o.UserID == userID && o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return nil, domain.NotFound("memTx.GetUserOrderByNumberForUpdate", "order", orderNumber)
}

func (t *memTx) ClearCart(ctx context.Context, userID int64) error {
	delete(t.s.carts, userID)
	return nil
}

// ============================================================================
// Mock provider adapter
// ============================================================================

type mockAdapter struct {
	method domain.PaymentMethod

	initiateResult *provider.InitiateResult
	initiateErr    error
	initiateCalls  int

	verifyResult *provider.CallbackResult
	verifyErr    error

	refundResult *provider.RefundResult
	refundErr    error
	refundCalls  int
}

func (m *mockAdapter) Method() domain.PaymentMethod { return m.method }

func (m *mockAdapter) Initiate(ctx context.Context, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	m.initiateCalls++
	if m.initiateErr != nil {
		return nil, m.initiateErr
	}
	if m.initiateResult != nil {
		return m.initiateResult, nil
	}
	return &provider.InitiateResult{
		TransactionID: req.Payment.ID.String(),
		PaymentURL:    "https://gateway.example/pay/" + req.Payment.ID.String(),
	}, nil
}

func (m *mockAdapter) VerifyCallback(ctx context.Context, cb provider.Callback) (*provider.CallbackResult, error) {
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.verifyResult, nil
}

func (m *mockAdapter) Refund(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	m.refundCalls++
	if m.refundErr != nil {
		return nil, m.refundErr
	}
	if m.refundResult != nil {
		return m.refundResult, nil
	}
	return &provider.RefundResult{ProviderRefundID: "refund-1"}, nil
}

// mockNotifier records confirmation sends.
type mockNotifier struct {
	sent chan string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{sent: make(chan string, 8)}
}

func (m *mockNotifier) SendOrderConfirmation(ctx context.Context, o *domain.Order) error {
	m.sent <- o.OrderNumber
	return nil
}
