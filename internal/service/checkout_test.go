package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/provider"
)

const testUserID int64 = 7

func newCheckoutFixture(adapters ...provider.Adapter) (*memStore, CheckoutService, *mockNotifier) {
	store := newMemStore()
	notifier := newMockNotifier()
	svc := NewCheckoutService(
		store, store, store,
		provider.NewRegistry(adapters...),
		notifier,
		testMetrics,
		zerolog.Nop(),
		0, "vnd",
	)
	return store, svc, notifier
}

func seedProduct(store *memStore, id int64, name string, price int64, stock int32) {
	store.products[id] = domain.Product{ID: id, Name: name, Price: price, Stock: stock}
}

func seedCart(store *memStore, userID int64, items ...domain.CartItem) {
	store.carts[userID] = items
}

var testShipping = domain.ShippingInfo{
	RecipientName: "Nguyen Van A",
	Phone:         "0901234567",
	Address:       "1 Le Loi",
	City:          "Ho Chi Minh",
}

// ============================================================================
// Checkout
// ============================================================================

func TestCheckout_EmptyCart(t *testing.T) {
	_, svc, _ := newCheckoutFixture(provider.NewCODAdapter())

	_, err := svc.Checkout(context.Background(), testUserID, CheckoutRequest{
		PaymentMethod: domain.PaymentMethodCOD,
		Shipping:      testShipping,
	})

	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestCheckout_InvalidPaymentMethod(t *testing.T) {
	_, svc, _ := newCheckoutFixture(provider.NewCODAdapter())

	_, err := svc.Checkout(context.Background(), testUserID, CheckoutRequest{
		PaymentMethod: "paypal",
		Shipping:      testShipping,
	})

	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestCheckout_COD(t *testing.T) {
	store, svc, notifier := newCheckoutFixture(provider.NewCODAdapter())
	seedProduct(store, 1, "Ceramic Mug", 100, 5)
	seedCart(store, testUserID, domain.CartItem{ProductID: 1, Quantity: 2})

	result, err := svc.Checkout(context.Background(), testUserID, CheckoutRequest{
		PaymentMethod: domain.PaymentMethodCOD,
		Shipping:      testShipping,
	})

	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.Nil(t, result.Payment, "cash on delivery creates no payment at checkout")

	assert.Equal(t, domain.OrderStatusPending, result.Order.Status)
	assert.Equal(t, domain.OrderUnpaid, result.Order.PaymentStatus)
	assert.Equal(t, int64(200), result.Order.Total)
	assert.Regexp(t, `^OWL\d{12}$`, result.Order.OrderNumber)

	assert.Equal(t, int32(3), store.products[1].Stock, "stock reserved")
	assert.Empty(t, store.carts[testUserID], "cart cleared")
	assert.Empty(t, store.payments)

	select {
	case number := <-notifier.sent:
		assert.Equal(t, result.Order.OrderNumber, number)
	case <-time.After(time.Second):
		t.Fatal("order confirmation was not published")
	}
}

func TestCheckout_InsufficientStock_NothingPersists(t *testing.T) {
	store, svc, _ := newCheckoutFixture(provider.NewCODAdapter())
	seedProduct(store, 1, "Ceramic Mug", 100, 5)
	seedProduct(store, 2, "Oak Tray", 250, 1)
	seedCart(store, testUserID,
		domain.CartItem{ProductID: 1, Quantity: 2},
		domain.CartItem{ProductID: 2, Quantity: 3},
	)

	_, err := svc.Checkout(context.Background(), testUserID, CheckoutRequest{
		PaymentMethod: domain.PaymentMethodCOD,
		Shipping:      testShipping,
	})

	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "Oak Tray")

	assert.Empty(t, store.orders, "no partial order")
	assert.Equal(t, int32(5), store.products[1].Stock, "no partial reservation")
	assert.Equal(t, int32(1), store.products[2].Stock)
	assert.Len(t, store.carts[testUserID], 2, "cart untouched")
}

func TestCheckout_RemovedProduct(t *testing.T) {
	store, svc, _ := newCheckoutFixture(provider.NewCODAdapter())
	seedCart(store, testUserID, domain.CartItem{ProductID: 42, Quantity: 1})

	_, err := svc.Checkout(context.Background(), testUserID, CheckoutRequest{
		PaymentMethod: domain.PaymentMethodCOD,
		Shipping:      testShipping,
	})

	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Empty(t, store.orders)
}

func TestCheckout_SalePriceSnapshotted(t *testing.T) {
	store, svc, _ := newCheckoutFixture(provider.NewCODAdapter())
	sale := int64(80)
	store.products[1] = domain.Product{ID: 1, Name: "Ceramic Mug", Price: 100, SalePrice: &sale, Stock: 5}
	seedCart(store, testUserID, domain.CartItem{ProductID: 1, Quantity: 2})

	result, err := svc.Checkout(context.Background(), testUserID, CheckoutRequest{
		PaymentMethod: domain.PaymentMethodCOD,
		Shipping:      testShipping,
	})

	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, int64(80), result.Order.Items[0].Price)
	assert.Equal(t, int64(160), result.Order.Total)
}

func TestCheckout_Online_ProviderHandoff(t *testing.T) {
	adapter := &mockAdapter{method: domain.PaymentMethodVNPay}
	store, svc, _ := newCheckoutFixture(adapter)
	seedProduct(store, 1, "Ceramic Mug", 100, 5)
	seedCart(store, testUserID, domain.CartItem{ProductID: 1, Quantity: 1})

	result, err := svc.Checkout(context.Background(), testUserID, CheckoutRequest{
		PaymentMethod: domain.PaymentMethodVNPay,
		Shipping:      testShipping,
	})

	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.Equal(t, domain.PaymentProcessing, result.Payment.Status)
	assert.Equal(t, result.Order.Total, result.Payment.Amount)
	assert.NotEmpty(t, result.Payment.PaymentURL)
	assert.Equal(t, 1, adapter.initiateCalls)

	stored := store.payments[result.Payment.ID]
	require.NotNil(t, stored)
	assert.Equal(t, domain.PaymentProcessing, stored.Status)
}

func TestCheckout_Online_InitiateFailureKeepsOrder(t *testing.T) {
	adapter := &mockAdapter{
		method:      domain.PaymentMethodMoMo,
		initiateErr: domain.Errorf(domain.EPAYMENT, "test", "gateway down"),
	}
	store, svc, _ := newCheckoutFixture(adapter)
	seedProduct(store, 1, "Ceramic Mug", 100, 5)
	seedCart(store, testUserID, domain.CartItem{ProductID: 1, Quantity: 2})

	result, err := svc.Checkout(context.Background(), testUserID, CheckoutRequest{
		PaymentMethod: domain.PaymentMethodMoMo,
		Shipping:      testShipping,
	})

	require.NoError(t, err, "provider failure must not fail checkout")
	require.NotNil(t, result.Order)
	assert.Len(t, store.orders, 1, "order survives")
	assert.Equal(t, int32(3), store.products[1].Stock, "reservation survives")

	require.NotNil(t, result.Payment)
	assert.Equal(t, domain.PaymentFailed, result.Payment.Status)
	stored := store.payments[result.Payment.ID]
	require.NotNil(t, stored)
	assert.Equal(t, domain.PaymentFailed, stored.Status)
	assert.Contains(t, stored.ProviderData["failure_reason"], "gateway down")
}
