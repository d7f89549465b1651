package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"
)

// CreateOrder persists a new order with its cart-items snapshot.
// The snapshot is write-once: nothing ever updates cart_items again.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			user_id, cart_items, total,
			payment_method, payment_status, payment_channel, payment_amount,
			billing_name, billing_phone, billing_email, billing_address,
			billing_city, billing_district, billing_country, billing_postal,
			shipping_name, shipping_phone, shipping_email, shipping_address,
			shipping_city, shipping_district, shipping_country, shipping_postal,
			status, notes
		) VALUES (
			:user_id, :cart_items, :total,
			:payment_method, :payment_status, :payment_channel, :payment_amount,
			:billing_name, :billing_phone, :billing_email, :billing_address,
			:billing_city, :billing_district, :billing_country, :billing_postal,
			:shipping_name, :shipping_phone, :shipping_email, :shipping_address,
			:shipping_city, :shipping_district, :shipping_country, :shipping_postal,
			:status, :notes
		)
		RETURNING id, created_at, updated_at`

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer stmt.Close()

	row := struct {
		ID        int64        `db:"id"`
		CreatedAt sql.NullTime `db:"created_at"`
		UpdatedAt sql.NullTime `db:"updated_at"`
	}{}
	if err := stmt.GetContext(ctx, &row, order); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	order.ID = row.ID
	order.CreatedAt = row.CreatedAt.Time
	order.UpdatedAt = row.UpdatedAt.Time
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByTransactionID retrieves the order carrying this merchant
// correlation id. Callback resolution goes through here exclusively.
func (s *Store) GetOrderByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE payment_transaction_id = $1", transactionID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order for transaction %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByUser retrieves a user's orders, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// AttachPaymentSession records the gateway session on the order before
// the customer is redirected. The merchant transaction id is assigned
// once and never changes afterwards.
func (s *Store) AttachPaymentSession(ctx context.Context, orderID int64, transactionID, gatewayID, redirectURL, channel string, amount int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_transaction_id = $1, payment_gateway_id = $2, payment_redirect_url = $3,
		    payment_channel = $4, payment_amount = $5, updated_at = NOW()
		WHERE id = $6`,
		transactionID, gatewayID, redirectURL, channel, amount, orderID)
	return err
}

// MarkPaymentPaid performs the terminal paid transition, but only if
// the payment is still pending. Returns false when the guard missed,
// which is how duplicate callback deliveries are absorbed.
func (s *Store) MarkPaymentPaid(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, payment_date = NOW(), updated_at = NOW()
		WHERE id = $3 AND payment_status = $4`,
		models.PaymentStatusPaid, models.OrderStatusProcessing, orderID, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkPaymentFailed performs the terminal failed transition under the
// same pending guard as MarkPaymentPaid.
func (s *Store) MarkPaymentFailed(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = $3`,
		models.PaymentStatusFailed, orderID, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateOrderStatus updates the fulfilment status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}
