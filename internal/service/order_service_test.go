package service

import (
	"context"
	"errors"
	"testing"

	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderStore struct {
	orders    map[int64]*models.Order
	nextID    int64
	createErr error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[int64]*models.Order), nextID: 1}
}

func (f *fakeOrderStore) CreateOrder(_ context.Context, order *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	order.ID = f.nextID
	f.nextID++
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) GetOrderByTransactionID(_ context.Context, transactionID string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.PaymentTransactionID == transactionID {
			cp := *order
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrderStore) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID != nil && *order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) AttachPaymentSession(_ context.Context, orderID int64, transactionID, gatewayID, redirectURL, channel string, amount int64) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.PaymentTransactionID = transactionID
	order.PaymentGatewayID = gatewayID
	order.PaymentRedirectURL = redirectURL
	order.PaymentChannel = channel
	order.PaymentAmount = amount
	return nil
}

func (f *fakeOrderStore) MarkPaymentPaid(_ context.Context, orderID int64) (bool, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return false, store.ErrNotFound
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	order.PaymentStatus = models.PaymentStatusPaid
	order.Status = models.OrderStatusProcessing
	return true, nil
}

func (f *fakeOrderStore) MarkPaymentFailed(_ context.Context, orderID int64) (bool, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return false, store.ErrNotFound
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	order.PaymentStatus = models.PaymentStatusFailed
	return true, nil
}

type fakeStockReserver struct {
	stock    map[int64]int
	released map[int64]int
	reserved map[int64]int
}

func newFakeStockReserver(stock map[int64]int) *fakeStockReserver {
	return &fakeStockReserver{
		stock:    stock,
		released: make(map[int64]int),
		reserved: make(map[int64]int),
	}
}

func (f *fakeStockReserver) ReserveStock(_ context.Context, productID int64, quantity int) (bool, error) {
	if f.stock[productID] < quantity {
		return false, nil
	}
	f.stock[productID] -= quantity
	f.reserved[productID] += quantity
	return true, nil
}

func (f *fakeStockReserver) ReleaseStock(_ context.Context, productID int64, quantity int) error {
	f.stock[productID] += quantity
	f.released[productID] += quantity
	return nil
}

type fakePublisher struct {
	orderCreated     []*models.OrderCreatedEvent
	paymentCompleted []*models.PaymentCompletedEvent
	paymentFailed    []*models.PaymentFailedEvent
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, event *models.OrderCreatedEvent) error {
	f.orderCreated = append(f.orderCreated, event)
	return nil
}

func (f *fakePublisher) PublishPaymentCompleted(_ context.Context, event *models.PaymentCompletedEvent) error {
	f.paymentCompleted = append(f.paymentCompleted, event)
	return nil
}

func (f *fakePublisher) PublishPaymentFailed(_ context.Context, event *models.PaymentFailedEvent) error {
	f.paymentFailed = append(f.paymentFailed, event)
	return nil
}

func validAddress() models.Address {
	return models.Address{
		Name:     "Ayesha Rahman",
		Phone:    "01711111111",
		Email:    "ayesha@example.com",
		Address:  "12 Lake Road",
		City:     "Dhaka",
		District: "Dhaka",
		Country:  "BD",
		Postal:   "1212",
	}
}

func validOrderRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		UserID: "u-1",
		CartItems: []CheckoutItem{
			{ProductID: 1, Name: "Tea", Quantity: 2, UnitPrice: 250},
			{ProductID: 2, Name: "Sugar", Quantity: 1, UnitPrice: 120},
		},
		Total:         2*250 + 120,
		PaymentMethod: models.PaymentMethodGateway,
		Billing:       validAddress(),
		Shipping:      validAddress(),
	}
}

func newTestOrderService() (*OrderService, *fakeOrderStore, *fakeStockReserver, *fakePublisher) {
	orders := newFakeOrderStore()
	reserver := newFakeStockReserver(map[int64]int{1: 10, 2: 10})
	publisher := &fakePublisher{}
	return NewOrderService(orders, reserver, publisher), orders, reserver, publisher
}

func TestCreateOrderSnapshotsItems(t *testing.T) {
	os, orders, _, publisher := newTestOrderService()

	order, err := os.CreateOrder(context.Background(), validOrderRequest())
	require.NoError(t, err)
	require.NotZero(t, order.ID)

	stored, err := orders.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)

	// the snapshot freezes name, quantity and unit price as submitted
	require.Len(t, stored.CartItems, 2)
	assert.Equal(t, "Tea", stored.CartItems[0].Name)
	assert.Equal(t, int64(250), stored.CartItems[0].UnitPrice)
	assert.Equal(t, int64(620), stored.Total)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, stored.Status)

	require.Len(t, publisher.orderCreated, 1)
	assert.Equal(t, order.ID, publisher.orderCreated[0].OrderID)
}

func TestCreateOrderValidatesFieldByField(t *testing.T) {
	os, orders, reserver, _ := newTestOrderService()

	cases := []struct {
		name   string
		mutate func(*CreateOrderRequest)
		field  string
	}{
		{"empty cart", func(r *CreateOrderRequest) { r.CartItems = nil }, "cart_items"},
		{"zero total", func(r *CreateOrderRequest) { r.Total = 0 }, "total"},
		{"no payment method", func(r *CreateOrderRequest) { r.PaymentMethod = "" }, "payment_method"},
		{"bad payment status", func(r *CreateOrderRequest) { r.PaymentStatus = "settled" }, "payment_status"},
		{"zero quantity", func(r *CreateOrderRequest) { r.CartItems[0].Quantity = 0 }, "cart_items.quantity"},
		{"total mismatch", func(r *CreateOrderRequest) { r.Total = 9999 }, "total"},
		{"missing billing city", func(r *CreateOrderRequest) { r.Billing.City = "" }, "billing_city"},
		{"missing shipping phone", func(r *CreateOrderRequest) { r.Shipping.Phone = "" }, "shipping_phone"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validOrderRequest()
			tc.mutate(req)

			_, err := os.CreateOrder(context.Background(), req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}

	// nothing was persisted or reserved along the way
	assert.Empty(t, orders.orders)
	assert.Empty(t, reserver.reserved)
}

func TestCreateOrderUserPrecedence(t *testing.T) {
	os, _, _, _ := newTestOrderService()

	// session identity wins over the payload field
	req := validOrderRequest()
	req.SessionUserID = "session-user"
	order, err := os.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, order.UserID)
	assert.Equal(t, "session-user", *order.UserID)

	// payload field stands in when there is no session
	req = validOrderRequest()
	order, err = os.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, order.UserID)
	assert.Equal(t, "u-1", *order.UserID)

	// a pure guest order carries no user at all
	req = validOrderRequest()
	req.UserID = ""
	order, err = os.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, order.UserID)
}

func TestCreateOrderInsufficientStockCompensates(t *testing.T) {
	orders := newFakeOrderStore()
	reserver := newFakeStockReserver(map[int64]int{1: 10, 2: 0})
	os := NewOrderService(orders, reserver, &fakePublisher{})

	_, err := os.CreateOrder(context.Background(), validOrderRequest())
	require.ErrorIs(t, err, ErrInsufficientStock)

	// the first item's reservation was rolled back
	assert.Equal(t, 2, reserver.released[1])
	assert.Equal(t, 10, reserver.stock[1])
	assert.Empty(t, orders.orders)
}

func TestCreateOrderStoreFailureReleasesStock(t *testing.T) {
	orders := newFakeOrderStore()
	orders.createErr = errors.New("connection reset")
	reserver := newFakeStockReserver(map[int64]int{1: 10, 2: 10})
	os := NewOrderService(orders, reserver, &fakePublisher{})

	_, err := os.CreateOrder(context.Background(), validOrderRequest())
	require.Error(t, err)

	assert.Equal(t, 2, reserver.released[1])
	assert.Equal(t, 1, reserver.released[2])
}

func TestGetOrderNotFound(t *testing.T) {
	os, _, _, _ := newTestOrderService()

	_, err := os.GetOrder(context.Background(), 42)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrdersForUser(t *testing.T) {
	os, orders, _, _ := newTestOrderService()

	for i := 0; i < 3; i++ {
		req := validOrderRequest()
		if i == 2 {
			req.UserID = "someone-else"
		}
		_, err := os.CreateOrder(context.Background(), req)
		require.NoError(t, err)
	}
	require.Len(t, orders.orders, 3)

	mine, err := os.ListOrdersForUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
