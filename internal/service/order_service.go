package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the order surface of the Data Store
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
}

// StockReserver reserves and releases inventory
type StockReserver interface {
	ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, productID int64, quantity int) error
}

// EventPublisher publishes domain events to the broker
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// OrderService turns checkout submissions into immutable orders and
// serves idempotent order lookups.
type OrderService struct {
	orders    OrderStore
	inventory StockReserver
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(orders OrderStore, inventory StockReserver, publisher EventPublisher) *OrderService {
	return &OrderService{
		orders:    orders,
		inventory: inventory,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CheckoutItem is one purchased line in a checkout submission.
// UnitPrice is the effective price the customer saw; it is frozen into
// the order snapshot as-is.
type CheckoutItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// CreateOrderRequest is a checkout submission
type CreateOrderRequest struct {
	// SessionUserID is filled from the authenticated session by the
	// HTTP layer, never from the request body.
	SessionUserID string `json:"-"`

	UserID        string         `json:"user_id,omitempty"`
	CartItems     []CheckoutItem `json:"cart_items"`
	Total         int64          `json:"total"`
	PaymentMethod string         `json:"payment_method"`
	PaymentStatus string         `json:"payment_status,omitempty"`
	Billing       models.Address `json:"billing"`
	Shipping      models.Address `json:"shipping"`
	Notes         string         `json:"notes,omitempty"`
}

// CreateOrder validates the submission, reserves stock, and persists
// one immutable order row. Validation fails fast naming the missing
// field; nothing is persisted on failure.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := validateCreateOrder(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	order := buildOrder(req)

	if err := s.reserveStock(ctx, req.CartItems); err != nil {
		util.OrdersFailedTotal.WithLabelValues("reservation").Inc()
		return nil, err
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.releaseStock(ctx, req.CartItems)
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("total", order.Total),
		zap.String("payment_method", order.PaymentMethod))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		Total:         order.Total,
		PaymentMethod: order.PaymentMethod,
		Items:         order.CartItems,
	}
	if order.UserID != nil {
		event.UserID = *order.UserID
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// GetOrder retrieves one order, side-effect free
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ListOrdersForUser returns the user's orders, newest first. The HTTP
// layer passes the authenticated session's user id only, so one user
// can never page through another's history.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

func (s *OrderService) reserveStock(ctx context.Context, items []CheckoutItem) error {
	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	for i, item := range items {
		ok, err := s.inventory.ReserveStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			util.InventoryReservationsFailed.WithLabelValues("error").Inc()
			s.releaseStock(ctx, items[:i])
			return fmt.Errorf("failed to reserve stock for product %d: %w", item.ProductID, err)
		}
		if !ok {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			s.releaseStock(ctx, items[:i])
			return fmt.Errorf("product %d: %w", item.ProductID, ErrInsufficientStock)
		}
	}
	return nil
}

func (s *OrderService) releaseStock(ctx context.Context, items []CheckoutItem) {
	for _, item := range items {
		if err := s.inventory.ReleaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to release reserved stock",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

func buildOrder(req *CreateOrderRequest) *models.Order {
	snapshot := make(models.OrderItemList, len(req.CartItems))
	for i, item := range req.CartItems {
		snapshot[i] = models.OrderItemSnapshot{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusPending
	}

	order := &models.Order{
		CartItems:     snapshot,
		Total:         req.Total,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: paymentStatus,
		Status:        models.OrderStatusPending,
		Notes:         req.Notes,

		BillingName:     req.Billing.Name,
		BillingPhone:    req.Billing.Phone,
		BillingEmail:    req.Billing.Email,
		BillingAddress:  req.Billing.Address,
		BillingCity:     req.Billing.City,
		BillingDistrict: req.Billing.District,
		BillingCountry:  req.Billing.Country,
		BillingPostal:   req.Billing.Postal,

		ShippingName:     req.Shipping.Name,
		ShippingPhone:    req.Shipping.Phone,
		ShippingEmail:    req.Shipping.Email,
		ShippingAddress:  req.Shipping.Address,
		ShippingCity:     req.Shipping.City,
		ShippingDistrict: req.Shipping.District,
		ShippingCountry:  req.Shipping.Country,
		ShippingPostal:   req.Shipping.Postal,
	}

	// Session identity wins over the payload field; a guest order
	// carries no user at all.
	switch {
	case req.SessionUserID != "":
		uid := req.SessionUserID
		order.UserID = &uid
	case req.UserID != "":
		uid := req.UserID
		order.UserID = &uid
	}

	return order
}

func validateCreateOrder(req *CreateOrderRequest) error {
	if len(req.CartItems) == 0 {
		return &ValidationError{Field: "cart_items"}
	}
	if req.Total <= 0 {
		return &ValidationError{Field: "total"}
	}
	if req.PaymentMethod == "" {
		return &ValidationError{Field: "payment_method"}
	}
	switch req.PaymentStatus {
	case "", models.PaymentStatusPending, models.PaymentStatusPaid,
		models.PaymentStatusFailed, models.PaymentStatusRefunded:
	default:
		return &ValidationError{Field: "payment_status", Reason: "unknown value"}
	}

	var sum int64
	for _, item := range req.CartItems {
		if item.ProductID == 0 {
			return &ValidationError{Field: "cart_items.product_id"}
		}
		if item.Quantity < 1 {
			return &ValidationError{Field: "cart_items.quantity", Reason: "must be at least 1"}
		}
		if item.UnitPrice <= 0 {
			return &ValidationError{Field: "cart_items.unit_price"}
		}
		sum += item.UnitPrice * int64(item.Quantity)
	}
	if sum != req.Total {
		return &ValidationError{Field: "total", Reason: fmt.Sprintf("expected %d from cart items, got %d", sum, req.Total)}
	}

	if err := validateAddress("billing", &req.Billing); err != nil {
		return err
	}
	return validateAddress("shipping", &req.Shipping)
}

func validateAddress(prefix string, addr *models.Address) error {
	fields := []struct {
		name  string
		value string
	}{
		{"name", addr.Name},
		{"phone", addr.Phone},
		{"email", addr.Email},
		{"address", addr.Address},
		{"city", addr.City},
		{"district", addr.District},
		{"country", addr.Country},
		{"postal", addr.Postal},
	}
	for _, f := range fields {
		if f.value == "" {
			return &ValidationError{Field: prefix + "_" + f.name}
		}
	}
	return nil
}
