package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Product represents a product in the catalog
type Product struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Image        string    `db:"image" json:"image"`
	Stock        int       `db:"stock" json:"stock"`
	RegularPrice int64     `db:"regular_price" json:"regular_price"`
	OfferPrice   int64     `db:"offer_price" json:"offer_price"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EffectivePrice returns the offer price when present and nonzero,
// else the regular price.
func (p *Product) EffectivePrice() int64 {
	if p.OfferPrice > 0 {
		return p.OfferPrice
	}
	return p.RegularPrice
}

// Inventory represents product stock
type Inventory struct {
	ProductID int64     `db:"product_id" json:"product_id"`
	Available int       `db:"available" json:"available"`
	Reserved  int       `db:"reserved" json:"reserved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is a server-persisted cart row for an authenticated user.
// One row per (user_id, product_id); upserted on conflict.
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GuestCartItem is an anonymous cart entry. It carries a display
// snapshot of the product captured when the item was added, so guest
// carts render without another catalog round-trip.
type GuestCartItem struct {
	ProductID    int64     `json:"product_id"`
	Quantity     int       `json:"quantity"`
	Name         string    `json:"name"`
	Image        string    `json:"image"`
	Stock        int       `json:"stock"`
	RegularPrice int64     `json:"regular_price"`
	OfferPrice   int64     `json:"offer_price"`
	AddedAt      time.Time `json:"added_at"`
}

// EffectivePrice mirrors Product.EffectivePrice for the snapshot.
func (i *GuestCartItem) EffectivePrice() int64 {
	if i.OfferPrice > 0 {
		return i.OfferPrice
	}
	return i.RegularPrice
}

// OrderItemSnapshot is a purchased line item, frozen at checkout.
// UnitPrice is the effective price at purchase time, never re-derived.
type OrderItemSnapshot struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderItemList stores the cart snapshot as a JSONB column.
type OrderItemList []OrderItemSnapshot

func (l OrderItemList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *OrderItemList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("unsupported cart_items column type %T", src)
	}
}

// Address is one billing or shipping block on an order.
type Address struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	District string `json:"district"`
	Country  string `json:"country"`
	Postal   string `json:"postal"`
}

// Order is the central entity: an immutable checkout record with a
// cart-items snapshot and billing/shipping snapshots. Orders are never
// deleted, only status-transitioned.
type Order struct {
	ID     int64   `db:"id" json:"id"`
	UserID *string `db:"user_id" json:"user_id,omitempty"`

	CartItems OrderItemList `db:"cart_items" json:"cart_items"`
	Total     int64         `db:"total" json:"total"`

	PaymentMethod        string     `db:"payment_method" json:"payment_method"`
	PaymentStatus        string     `db:"payment_status" json:"payment_status"`
	PaymentChannel       string     `db:"payment_channel" json:"payment_channel,omitempty"`
	PaymentTransactionID string     `db:"payment_transaction_id" json:"payment_transaction_id,omitempty"`
	PaymentGatewayID     string     `db:"payment_gateway_id" json:"payment_gateway_id,omitempty"`
	PaymentRedirectURL   string     `db:"payment_redirect_url" json:"payment_redirect_url,omitempty"`
	PaymentAmount        int64      `db:"payment_amount" json:"payment_amount,omitempty"`
	PaymentDate          *time.Time `db:"payment_date" json:"payment_date,omitempty"`

	BillingName     string `db:"billing_name" json:"billing_name"`
	BillingPhone    string `db:"billing_phone" json:"billing_phone"`
	BillingEmail    string `db:"billing_email" json:"billing_email"`
	BillingAddress  string `db:"billing_address" json:"billing_address"`
	BillingCity     string `db:"billing_city" json:"billing_city"`
	BillingDistrict string `db:"billing_district" json:"billing_district"`
	BillingCountry  string `db:"billing_country" json:"billing_country"`
	BillingPostal   string `db:"billing_postal" json:"billing_postal"`

	ShippingName     string `db:"shipping_name" json:"shipping_name"`
	ShippingPhone    string `db:"shipping_phone" json:"shipping_phone"`
	ShippingEmail    string `db:"shipping_email" json:"shipping_email"`
	ShippingAddress  string `db:"shipping_address" json:"shipping_address"`
	ShippingCity     string `db:"shipping_city" json:"shipping_city"`
	ShippingDistrict string `db:"shipping_district" json:"shipping_district"`
	ShippingCountry  string `db:"shipping_country" json:"shipping_country"`
	ShippingPostal   string `db:"shipping_postal" json:"shipping_postal"`

	Status    string    `db:"status" json:"status"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment statuses. Paid and failed are terminal for the orchestrator;
// refunded is reachable only through admin override.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Payment methods
const (
	PaymentMethodCash    = "cash"
	PaymentMethodGateway = "gateway"
)

// GatewayToken is the shared single-row cache for the gateway auth
// token, so horizontally scaled instances agree on the current token.
type GatewayToken struct {
	ID        int       `db:"id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ProcessedEvent for settlement worker idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
